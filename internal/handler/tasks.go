package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/task-rewards/internal/model"
	"github.com/mmeshcher/task-rewards/internal/repository"
	"github.com/mmeshcher/task-rewards/internal/service"
	"github.com/mmeshcher/task-rewards/internal/validation"
)

// ListTasks возвращает все задания, активные и неактивные.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.service.ListTasks(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "list tasks error", err)
		return
	}

	resp := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		resp = append(resp, newTaskResponse(&tasks[i]))
	}

	h.writeData(w, http.StatusOK, resp, "")
}

func parseTaskStatus(raw string) (model.TaskStatus, bool) {
	switch s := model.TaskStatus(strings.TrimSpace(raw)); s {
	case model.TaskStatusActive, model.TaskStatusInactive:
		return s, true
	default:
		return "", false
	}
}

type createTaskRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Reward      decimal.Decimal `json:"reward"`
	Status      string          `json:"status"`
	Difficulty  string          `json:"difficulty"`
}

// CreateTask создаёт новое задание.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		h.writeError(w, http.StatusBadRequest, "Title is required")
		return
	}
	if !validation.IsPositiveAmount(req.Reward) {
		h.writeError(w, http.StatusBadRequest, "Reward must be a positive number with at most two decimal places")
		return
	}

	nt := model.NewTask{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Reward:      req.Reward,
		Difficulty:  req.Difficulty,
	}
	if req.Status != "" {
		status, ok := parseTaskStatus(req.Status)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "Status must be active or inactive")
			return
		}
		nt.Status = status
	}

	task, err := h.service.CreateTask(r.Context(), nt)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			h.writeError(w, http.StatusBadRequest, "Reward must be a positive number with at most two decimal places")
			return
		}
		h.writeInternalError(w, r, "create task error", err)
		return
	}

	h.logAdminAction(r, "create task", zap.Int64("taskID", task.ID))
	h.writeData(w, http.StatusCreated, newTaskResponse(task), "Task created successfully")
}

type updateTaskRequest struct {
	TaskID      flexID           `json:"taskId"`
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Reward      *decimal.Decimal `json:"reward"`
	Status      *string          `json:"status"`
	Difficulty  *string          `json:"difficulty"`
}

// UpdateTask частично обновляет задание; поля, отсутствующие в запросе, не изменяются.
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TaskID == 0 {
		h.writeError(w, http.StatusBadRequest, "Task ID is required")
		return
	}

	upd := model.TaskUpdate{
		ID:          int64(req.TaskID),
		Title:       req.Title,
		Description: req.Description,
		Reward:      req.Reward,
		Difficulty:  req.Difficulty,
	}
	if req.Reward != nil && !validation.IsPositiveAmount(*req.Reward) {
		h.writeError(w, http.StatusBadRequest, "Reward must be a positive number with at most two decimal places")
		return
	}
	if req.Status != nil {
		status, ok := parseTaskStatus(*req.Status)
		if !ok {
			h.writeError(w, http.StatusBadRequest, "Status must be active or inactive")
			return
		}
		upd.Status = &status
	}

	task, err := h.service.UpdateTask(r.Context(), upd)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTaskNotFound):
			h.writeError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, service.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, "Reward must be a positive number with at most two decimal places")
		default:
			h.writeInternalError(w, r, "update task error", err, zap.Int64("taskID", upd.ID))
		}
		return
	}

	h.logAdminAction(r, "update task", zap.Int64("taskID", task.ID))
	h.writeData(w, http.StatusOK, newTaskResponse(task), "Task updated successfully")
}

type completeTaskRequest struct {
	TaskID flexID `json:"taskId"`
	UserID flexID `json:"userId"`
}

// CompleteTaskManually создаёт запись о выполнении, ожидающую проверки. Повторное выполнение отклоняется.
func (h *Handler) CompleteTaskManually(w http.ResponseWriter, r *http.Request) {
	var req completeTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TaskID == 0 || req.UserID == 0 {
		h.writeError(w, http.StatusBadRequest, "Task ID and User ID are required")
		return
	}

	userID, taskID := int64(req.UserID), int64(req.TaskID)
	res, err := h.service.CompleteTask(r.Context(), userID, taskID, service.CompleteOptions{
		Manual:      true,
		OnDuplicate: model.DuplicateReject,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAlreadyCompleted):
			h.writeError(w, http.StatusBadRequest, "You have already completed this task")
		case errors.Is(err, repository.ErrTaskNotFound):
			h.writeError(w, http.StatusNotFound, "Task not found")
		case errors.Is(err, repository.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		default:
			h.writeInternalError(w, r, "complete task manually error", err,
				zap.Int64("userID", userID), zap.Int64("taskID", taskID))
		}
		return
	}

	h.writeData(w, http.StatusOK, newCompletionResponse(&res.Completion),
		"Task marked as completed! Reward pending verification.")
}

type completionStatusResponse struct {
	Completed      bool                `json:"completed"`
	CompletionData *completionResponse `json:"completionData"`
}

// GetCompletionStatus сообщает, выполнял ли пользователь задание.
func (h *Handler) GetCompletionStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawUserID, rawTaskID := q.Get("userId"), q.Get("taskId")
	if strings.TrimSpace(rawUserID) == "" || strings.TrimSpace(rawTaskID) == "" {
		h.writeError(w, http.StatusBadRequest, "User ID and Task ID are required")
		return
	}

	userID, errU := validation.ParseID(rawUserID)
	taskID, errT := validation.ParseID(rawTaskID)
	if errU != nil || errT != nil {
		h.writeError(w, http.StatusBadRequest, "User ID and Task ID must be positive integers")
		return
	}

	completed, c, err := h.service.GetCompletionStatus(r.Context(), userID, taskID)
	if err != nil {
		h.writeInternalError(w, r, "check task completion error", err,
			zap.Int64("userID", userID), zap.Int64("taskID", taskID))
		return
	}

	h.writeData(w, http.StatusOK, completionStatusResponse{
		Completed:      completed,
		CompletionData: newCompletionResponse(c),
	}, "")
}

type addRewardRequest struct {
	UserID      flexID          `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	TaskID      flexID          `json:"taskId"`
	Description string          `json:"description"`
}

// AddReward начисляет пользователю произвольное вознаграждение.
func (h *Handler) AddReward(w http.ResponseWriter, r *http.Request) {
	var req addRewardRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.UserID == 0 || req.Amount.IsZero() {
		h.writeError(w, http.StatusBadRequest, "User ID and amount are required")
		return
	}
	if !validation.IsPositiveAmount(req.Amount) {
		h.writeError(w, http.StatusBadRequest, "Amount must be a positive number with at most two decimal places")
		return
	}

	var taskID *int64
	if req.TaskID != 0 {
		id := int64(req.TaskID)
		taskID = &id
	}

	credit, err := h.service.CreditReward(r.Context(), int64(req.UserID), req.Amount, taskID, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidAmount):
			h.writeError(w, http.StatusBadRequest, "Amount must be a positive number with at most two decimal places")
		case errors.Is(err, service.ErrInvalidUser):
			h.writeError(w, http.StatusBadRequest, "User ID and amount are required")
		case errors.Is(err, repository.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		default:
			h.writeInternalError(w, r, "add reward error", err, zap.Int64("userID", int64(req.UserID)))
		}
		return
	}

	h.logAdminAction(r, "add reward", zap.Int64("userID", int64(req.UserID)),
		zap.String("amount", req.Amount.String()))
	h.writeData(w, http.StatusOK, newCreditResponse(&credit), "Reward added successfully")
}

type verifyCompletionRequest struct {
	UserID  flexID `json:"userId"`
	TaskID  flexID `json:"taskId"`
	Approve bool   `json:"approve"`
}

type verifyCompletionResponse struct {
	Completion *completionResponse `json:"completion"`
	Credit     *creditResponse     `json:"credit,omitempty"`
}

// VerifyCompletion подтверждает или отклоняет выполнение, ожидающее проверки.
func (h *Handler) VerifyCompletion(w http.ResponseWriter, r *http.Request) {
	var req verifyCompletionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TaskID == 0 || req.UserID == 0 {
		h.writeError(w, http.StatusBadRequest, "Task ID and User ID are required")
		return
	}

	userID, taskID := int64(req.UserID), int64(req.TaskID)
	res, err := h.service.ResolveCompletion(r.Context(), userID, taskID, req.Approve)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrCompletionNotFound):
			h.writeError(w, http.StatusNotFound, "Completion not found")
		case errors.Is(err, repository.ErrCompletionNotPending):
			h.writeError(w, http.StatusConflict, "Completion is not pending verification")
		case errors.Is(err, repository.ErrUserNotFound):
			h.writeError(w, http.StatusNotFound, "User not found")
		default:
			h.writeInternalError(w, r, "verify completion error", err,
				zap.Int64("userID", userID), zap.Int64("taskID", taskID))
		}
		return
	}

	h.logAdminAction(r, "verify completion", zap.Int64("userID", userID),
		zap.Int64("taskID", taskID), zap.Bool("approve", req.Approve))

	message := "Completion rejected"
	if req.Approve {
		message = "Completion verified and reward credited"
	}

	h.writeData(w, http.StatusOK, verifyCompletionResponse{
		Completion: newCompletionResponse(&res.Completion),
		Credit:     newCreditResponse(res.Credit),
	}, message)
}
