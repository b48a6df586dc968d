package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/task-rewards/internal/repository"
	"github.com/mmeshcher/task-rewards/internal/verifier"
)

const verificationBatchSize = 100

// StartVerificationUpdates периодически запрашивает у системы проверки результаты по выполнениям,
// ожидающим проверки, и подтверждает или отклоняет их. Блокируется до отмены ctx.
// Без настроенного клиента возвращается сразу.
func (s *Service) StartVerificationUpdates(ctx context.Context, interval time.Duration) {
	if s.verifierClient == nil {
		return
	}

	if interval <= 0 {
		interval = 5 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.processVerificationBatch(ctx)
		}
	}
}

func (s *Service) processVerificationBatch(ctx context.Context) {
	pending, err := s.repo.GetPendingCompletions(ctx, verificationBatchSize)
	if err != nil {
		s.logger.Error("get pending completions error", zap.Error(err))
		return
	}

	for _, c := range pending {
		res, err := s.verifierClient.Check(ctx, c.UserID, c.TaskID)
		if err != nil {
			s.logger.Warn("verification request error", zap.Error(err),
				zap.Int64("userID", c.UserID), zap.Int64("taskID", c.TaskID))
			continue
		}

		if res.Outcome == verifier.OutcomeRateLimited {
			s.logger.Info("verifier rate limit reached", zap.Duration("retryAfter", res.RetryAfter))
			timer := time.NewTimer(res.RetryAfter)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		if !res.Decided() {
			continue
		}

		approve := res.Outcome == verifier.OutcomeApproved
		if _, err := s.ResolveCompletion(ctx, c.UserID, c.TaskID, approve); err != nil {
			if errors.Is(err, repository.ErrCompletionNotPending) {
				continue
			}
			s.logger.Error("resolve completion error", zap.Error(err),
				zap.Int64("userID", c.UserID), zap.Int64("taskID", c.TaskID))
		}
	}
}
