package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/task-rewards/internal/model"
	"github.com/mmeshcher/task-rewards/internal/repository"
	"github.com/mmeshcher/task-rewards/internal/validation"
)

// CompleteOptions задаёт режим выполнения задания.
type CompleteOptions struct {
	// Manual создаёт запись со статусом ожидания проверки без начисления вознаграждения.
	Manual      bool
	OnDuplicate model.DuplicatePolicy
}

// ListTasks возвращает все задания.
func (s *Service) ListTasks(ctx context.Context) ([]model.Task, error) {
	return s.repo.ListTasks(ctx)
}

// GetTask возвращает задание по идентификатору.
func (s *Service) GetTask(ctx context.Context, taskID int64) (*model.Task, error) {
	return s.repo.GetTask(ctx, taskID)
}

// CreateTask создаёт задание с положительным вознаграждением не дробнее копейки.
func (s *Service) CreateTask(ctx context.Context, nt model.NewTask) (*model.Task, error) {
	if err := validation.ValidateAmount(nt.Reward); err != nil {
		return nil, err
	}
	return s.repo.CreateTask(ctx, nt)
}

// UpdateTask обновляет задание.
func (s *Service) UpdateTask(ctx context.Context, upd model.TaskUpdate) (*model.Task, error) {
	if upd.Reward != nil {
		if err := validation.ValidateAmount(*upd.Reward); err != nil {
			return nil, err
		}
	}
	return s.repo.UpdateTask(ctx, upd)
}

// CreditReward начисляет пользователю сумму amount и записывает операцию в журнал.
func (s *Service) CreditReward(ctx context.Context, userID int64, amount decimal.Decimal, taskID *int64, description string) (model.Credit, error) {
	if userID <= 0 {
		return model.Credit{}, ErrInvalidUser
	}
	if err := validation.ValidateAmount(amount); err != nil {
		return model.Credit{}, err
	}

	if description == "" {
		description = defaultRewardDescription(taskID)
	}

	return s.repo.CreditReward(ctx, userID, amount, taskID, description)
}

func defaultRewardDescription(taskID *int64) string {
	if taskID == nil {
		return "Reward"
	}
	return fmt.Sprintf("Reward for completing task %d", *taskID)
}

// CompleteTask отмечает выполнение задания пользователем. В автоматическом режиме вознаграждение
// начисляется в той же транзакции, что и запись о выполнении; в ручном режиме запись ожидает проверки.
// Повторное выполнение обрабатывается согласно opts.OnDuplicate.
func (s *Service) CompleteTask(ctx context.Context, userID, taskID int64, opts CompleteOptions) (*model.CompletionResult, error) {
	status := model.CompletionStatusCompleted
	if opts.Manual {
		status = model.CompletionStatusPendingVerification
	}

	res, err := s.repo.CompleteTask(ctx, userID, taskID, status, !opts.Manual)
	if err != nil {
		return nil, err
	}

	if res.AlreadyCompleted {
		if opts.OnDuplicate == model.DuplicateReject {
			return nil, ErrAlreadyCompleted
		}
		return res, nil
	}

	s.logger.Info("task completed",
		zap.Int64("userID", userID),
		zap.Int64("taskID", taskID),
		zap.String("status", string(res.Completion.Status)),
		zap.Stringer("reward", res.Reward),
	)

	return res, nil
}

// GetCompletionStatus сообщает, выполнял ли пользователь задание, и возвращает запись о выполнении.
func (s *Service) GetCompletionStatus(ctx context.Context, userID, taskID int64) (bool, *model.Completion, error) {
	c, err := s.repo.GetCompletion(ctx, userID, taskID)
	if err != nil {
		if errors.Is(err, repository.ErrCompletionNotFound) {
			return false, nil, nil
		}
		return false, nil, err
	}
	return true, c, nil
}

// ResolveCompletion подтверждает или отклоняет выполнение, ожидающее проверки.
func (s *Service) ResolveCompletion(ctx context.Context, userID, taskID int64, approve bool) (*model.CompletionResult, error) {
	res, err := s.repo.ResolveCompletion(ctx, userID, taskID, approve)
	if err != nil {
		return nil, err
	}

	s.logger.Info("completion resolved",
		zap.Int64("userID", userID),
		zap.Int64("taskID", taskID),
		zap.String("status", string(res.Completion.Status)),
	)

	return res, nil
}
