// Package handler содержит HTTP-обработчики API сервиса вознаграждений.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/task-rewards/internal/middleware"
	"github.com/mmeshcher/task-rewards/internal/model"
	"github.com/mmeshcher/task-rewards/internal/service"
	"github.com/mmeshcher/task-rewards/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Ping(ctx context.Context) error
	RegisterUser(ctx context.Context, email, password, firstName, lastName string) (*model.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	AuthenticateAdmin(ctx context.Context, email, password string) error
	GetBalance(ctx context.Context, userID int64) (*model.User, error)
	GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, userID int64) error
	ListTasks(ctx context.Context) ([]model.Task, error)
	GetTask(ctx context.Context, taskID int64) (*model.Task, error)
	CreateTask(ctx context.Context, nt model.NewTask) (*model.Task, error)
	UpdateTask(ctx context.Context, upd model.TaskUpdate) (*model.Task, error)
	CreditReward(ctx context.Context, userID int64, amount decimal.Decimal, taskID *int64, description string) (model.Credit, error)
	CompleteTask(ctx context.Context, userID, taskID int64, opts service.CompleteOptions) (*model.CompletionResult, error)
	GetCompletionStatus(ctx context.Context, userID, taskID int64) (bool, *model.Completion, error)
	ResolveCompletion(ctx context.Context, userID, taskID int64, approve bool) (*model.CompletionResult, error)
}

// Handler реализует HTTP-обработчики API сервиса вознаграждений.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("write response error", zap.Error(err))
	}
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data any, message string) {
	h.writeJSON(w, status, envelope{Success: true, Data: data, Message: message})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, envelope{Success: false, Error: msg})
}

// writeInternalError журналирует err и отвечает клиенту 500 без подробностей.
func (h *Handler) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err), zap.String("path", r.URL.Path))
	h.logger.Error(msg, fields...)
	h.writeError(w, http.StatusInternalServerError, "Internal server error")
}

// logAdminAction фиксирует изменение, выполненное администратором из токена запроса.
func (h *Handler) logAdminAction(r *http.Request, action string, fields ...zap.Field) {
	email, _ := middleware.GetAdminEmailFromContext(r.Context())
	fields = append([]zap.Field{zap.String("action", action), zap.String("admin", email)}, fields...)
	h.logger.Info("admin action", fields...)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// flexID принимает идентификатор как JSON-число или строку с числом.
type flexID int64

func (f *flexID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*f = 0
		return nil
	}
	id, err := validation.ParseID(s)
	if err != nil {
		return err
	}
	*f = flexID(id)
	return nil
}

func money(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

type userResponse struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	Balance     float64 `json:"balance"`
	TotalEarned float64 `json:"totalEarned"`
	CreatedAt   string  `json:"createdAt"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Email:       u.Email,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Balance:     money(u.Balance),
		TotalEarned: money(u.TotalEarned),
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
}

type taskResponse struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Reward      float64 `json:"reward"`
	Status      string  `json:"status"`
	Difficulty  string  `json:"difficulty"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func newTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Reward:      money(t.Reward),
		Status:      string(t.Status),
		Difficulty:  t.Difficulty,
		CreatedAt:   t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   t.UpdatedAt.Format(time.RFC3339),
	}
}

type completionResponse struct {
	UserID       int64   `json:"userId"`
	TaskID       int64   `json:"taskId"`
	AmountEarned float64 `json:"amountEarned"`
	Status       string  `json:"status"`
	CompletedAt  string  `json:"completedAt"`
}

func newCompletionResponse(c *model.Completion) *completionResponse {
	if c == nil {
		return nil
	}
	return &completionResponse{
		UserID:       c.UserID,
		TaskID:       c.TaskID,
		AmountEarned: money(c.AmountEarned),
		Status:       string(c.Status),
		CompletedAt:  c.CompletedAt.Format(time.RFC3339),
	}
}

type transactionResponse struct {
	ID          int64   `json:"id"`
	TaskID      *int64  `json:"taskId,omitempty"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	CreatedAt   string  `json:"createdAt"`
}

type creditResponse struct {
	NewBalance     float64 `json:"newBalance"`
	NewTotalEarned float64 `json:"newTotalEarned"`
}

func newCreditResponse(c *model.Credit) *creditResponse {
	if c == nil {
		return nil
	}
	return &creditResponse{
		NewBalance:     money(c.Balance),
		NewTotalEarned: money(c.TotalEarned),
	}
}

// Health сообщает о доступности хранилища.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", zap.Error(err))
		h.writeError(w, http.StatusServiceUnavailable, "Storage unavailable")
		return
	}
	h.writeData(w, http.StatusOK, nil, "OK")
}
