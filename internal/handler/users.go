package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/task-rewards/internal/middleware"
	"github.com/mmeshcher/task-rewards/internal/repository"
	"github.com/mmeshcher/task-rewards/internal/service"
	"github.com/mmeshcher/task-rewards/internal/validation"
)

type signupRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string        `json:"token"`
	User  *userResponse `json:"user,omitempty"`
}

// Signup регистрирует нового пользователя.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	if !validation.IsValidEmail(req.Email) {
		h.writeError(w, http.StatusBadRequest, "Invalid email address")
		return
	}

	u, err := h.service.RegisterUser(r.Context(), req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			h.writeError(w, http.StatusConflict, "User with this email already exists")
			return
		}
		h.writeInternalError(w, r, "register user error", err)
		return
	}

	token, err := h.authMiddleware.SetAuthCookie(w, u.ID)
	if err != nil {
		h.writeInternalError(w, r, "issue token error", err, zap.Int64("userID", u.ID))
		return
	}

	user := newUserResponse(u)
	h.writeData(w, http.StatusOK, sessionResponse{Token: token, User: &user}, "User created successfully!")
}

// Login выполняет аутентификацию пользователя и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		h.writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	u, err := h.service.AuthenticateUser(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.writeInternalError(w, r, "login user error", err)
		return
	}

	token, err := h.authMiddleware.SetAuthCookie(w, u.ID)
	if err != nil {
		h.writeInternalError(w, r, "issue token error", err, zap.Int64("userID", u.ID))
		return
	}

	user := newUserResponse(u)
	h.writeData(w, http.StatusOK, sessionResponse{Token: token, User: &user}, "Login successful!")
}

type balanceResponse struct {
	Balance     float64 `json:"balance"`
	TotalEarned float64 `json:"totalEarned"`
}

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	u, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.writeInternalError(w, r, "get balance error", err, zap.Int64("userID", userID))
		return
	}

	h.writeData(w, http.StatusOK, balanceResponse{
		Balance:     money(u.Balance),
		TotalEarned: money(u.TotalEarned),
	}, "")
}

// GetTransactions возвращает журнал начислений текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	txs, err := h.service.GetTransactions(r.Context(), userID)
	if err != nil {
		h.writeInternalError(w, r, "get transactions error", err, zap.Int64("userID", userID))
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		resp = append(resp, transactionResponse{
			ID:          tx.ID,
			TaskID:      tx.TaskID,
			Amount:      money(tx.Amount),
			Type:        string(tx.Type),
			Description: tx.Description,
			CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
		})
	}

	h.writeData(w, http.StatusOK, resp, "")
}

// AdminLogin проверяет учётные данные администратора и выдаёт токен администратора.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.service.AuthenticateAdmin(r.Context(), strings.TrimSpace(req.Email), req.Password); err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			h.logger.Warn("admin login rejected", zap.String("email", req.Email))
			h.writeError(w, http.StatusUnauthorized, "Invalid admin credentials")
			return
		}
		h.writeInternalError(w, r, "admin login error", err)
		return
	}

	token, err := h.authMiddleware.IssueAdminToken(strings.TrimSpace(req.Email))
	if err != nil {
		h.writeInternalError(w, r, "issue admin token error", err)
		return
	}

	h.writeData(w, http.StatusOK, sessionResponse{Token: token}, "Admin login successful")
}

// ListUsers возвращает всех пользователей.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "list users error", err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for i := range users {
		resp = append(resp, newUserResponse(&users[i]))
	}

	h.writeData(w, http.StatusOK, resp, "")
}

type deleteUserRequest struct {
	UserID flexID `json:"userId"`
}

// DeleteUser удаляет пользователя.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	var req deleteUserRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.UserID == 0 {
		h.writeError(w, http.StatusBadRequest, "User ID is required")
		return
	}

	if err := h.service.DeleteUser(r.Context(), int64(req.UserID)); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.writeInternalError(w, r, "delete user error", err, zap.Int64("userID", int64(req.UserID)))
		return
	}

	h.logAdminAction(r, "delete user", zap.Int64("userID", int64(req.UserID)))
	h.writeData(w, http.StatusOK, nil, "User deleted successfully")
}
