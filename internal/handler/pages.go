package handler

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/task-rewards/internal/model"
	"github.com/mmeshcher/task-rewards/internal/repository"
	"github.com/mmeshcher/task-rewards/internal/service"
	"github.com/mmeshcher/task-rewards/internal/validation"
)

//go:embed templates/*.html
var templatesFS embed.FS

var pages = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type messagePage struct {
	Heading string
	Text    string
}

type taskPage struct {
	Title  string
	Reward string
}

type completedPage struct {
	Title  string
	Reward string
	UserID int64
}

func (h *Handler) renderPage(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("render page error", zap.Error(err), zap.String("page", name))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("write page error", zap.Error(err))
	}
}

func (h *Handler) renderMessage(w http.ResponseWriter, status int, heading, text string) {
	h.renderPage(w, status, "message.html", messagePage{Heading: heading, Text: text})
}

// TaskInstructions показывает страницу с инструкцией по выполнению задания.
func (h *Handler) TaskInstructions(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("taskId")
	if strings.TrimSpace(raw) == "" {
		h.renderMessage(w, http.StatusBadRequest, "Error: Missing Task ID",
			"Task ID missing from URL. Please contact support.")
		return
	}

	taskID, err := validation.ParseID(raw)
	if err != nil {
		h.renderMessage(w, http.StatusBadRequest, "Error: Invalid Task ID",
			"Task ID must be a number. Received: "+raw)
		return
	}

	task, err := h.service.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			h.renderMessage(w, http.StatusNotFound, "Task Not Found",
				"The requested task does not exist or has been removed.")
			return
		}
		h.logger.Error("get task error", zap.Error(err), zap.Int64("taskID", taskID))
		h.renderMessage(w, http.StatusInternalServerError, "Error",
			"Something went wrong. Please try again or contact support.")
		return
	}

	h.renderPage(w, http.StatusOK, "task.html", taskPage{
		Title:  task.Title,
		Reward: task.Reward.String(),
	})
}

// AutoComplete выполняет задание по ссылке и начисляет вознаграждение. Повторный переход по
// ссылке показывает страницу «уже выполнено» без повторного начисления.
func (h *Handler) AutoComplete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawTaskID, rawUserID := q.Get("taskId"), q.Get("userId")
	if strings.TrimSpace(rawTaskID) == "" || strings.TrimSpace(rawUserID) == "" {
		h.renderMessage(w, http.StatusBadRequest, "Error: Missing Parameters",
			"Task ID or User ID missing from URL")
		return
	}

	taskID, errT := validation.ParseID(rawTaskID)
	userID, errU := validation.ParseID(rawUserID)
	if errT != nil || errU != nil {
		h.renderMessage(w, http.StatusBadRequest, "Error: Invalid Parameters",
			"User ID and Task ID must be numbers")
		return
	}

	res, err := h.service.CompleteTask(r.Context(), userID, taskID, service.CompleteOptions{
		OnDuplicate: model.DuplicateIdempotent,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTaskNotFound):
			h.renderMessage(w, http.StatusNotFound, "Task Not Found",
				"The requested task does not exist or has been removed.")
		case errors.Is(err, repository.ErrUserNotFound):
			h.renderMessage(w, http.StatusNotFound, "User Not Found",
				"The user in this link does not exist.")
		default:
			h.logger.Error("auto complete task error", zap.Error(err),
				zap.Int64("userID", userID), zap.Int64("taskID", taskID))
			h.renderMessage(w, http.StatusInternalServerError, "Error",
				"Something went wrong. Please try again or contact support.")
		}
		return
	}

	if res.AlreadyCompleted {
		h.renderMessage(w, http.StatusOK, "Already Completed", alreadyCompletedText(res.Completion.Status))
		return
	}

	h.renderPage(w, http.StatusOK, "completed.html", completedPage{
		Title:  res.TaskTitle,
		Reward: res.Reward.String(),
		UserID: userID,
	})
}

// alreadyCompletedText описывает состояние ранее созданной записи о выполнении.
func alreadyCompletedText(status model.CompletionStatus) string {
	switch status {
	case model.CompletionStatusPendingVerification:
		return "You have already submitted this task. Your reward will be credited once the completion is verified."
	case model.CompletionStatusRejected:
		return "You have already submitted this task, but the completion was rejected and no reward was credited."
	default:
		return "You have already completed this task and received your reward."
	}
}
