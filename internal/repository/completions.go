package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/task-rewards/internal/model"
	"github.com/mmeshcher/task-rewards/internal/validation"
)

const completionColumns = `user_id, task_id, amount_earned, status, completed_at`

func scanCompletion(row pgx.Row) (*model.Completion, error) {
	var (
		c      model.Completion
		status string
	)
	if err := row.Scan(&c.UserID, &c.TaskID, &c.AmountEarned, &status, &c.CompletedAt); err != nil {
		return nil, err
	}
	c.Status = model.CompletionStatus(status)
	return &c, nil
}

// creditTx начисляет сумму пользователю и добавляет запись в журнал начислений в рамках транзакции tx.
// Возвращает баланс в том виде, в каком он сохранён в базе.
func creditTx(ctx context.Context, tx pgx.Tx, userID int64, amount decimal.Decimal, taskID *int64, description string) (model.Credit, error) {
	if err := validation.ValidateAmount(amount); err != nil {
		return model.Credit{}, err
	}

	var balance, totalEarned decimal.NullDecimal
	err := tx.QueryRow(ctx,
		`UPDATE users
		 SET balance = COALESCE(balance, 0) + $2, total_earned = COALESCE(total_earned, 0) + $2
		 WHERE id = $1
		 RETURNING balance, total_earned`,
		userID, amount,
	).Scan(&balance, &totalEarned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Credit{}, ErrUserNotFound
		}
		return model.Credit{}, fmt.Errorf("update balance: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (user_id, task_id, amount, type, description) VALUES ($1, $2, $3, $4, $5)`,
		userID, taskID, amount, string(model.TransactionTypeTaskReward), description,
	)
	if err != nil {
		return model.Credit{}, fmt.Errorf("insert transaction: %w", err)
	}

	return model.Credit{Balance: orZero(balance), TotalEarned: orZero(totalEarned)}, nil
}

// CreditReward начисляет вознаграждение пользователю. Изменение баланса и запись в журнал
// выполняются атомарно.
func (r *PostgresRepository) CreditReward(ctx context.Context, userID int64, amount decimal.Decimal, taskID *int64, description string) (model.Credit, error) {
	var credit model.Credit

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var err error
		credit, err = creditTx(ctx, tx, userID, amount, taskID, description)
		return err
	})
	if err != nil {
		return model.Credit{}, err
	}

	return credit, nil
}

// CompleteTask записывает выполнение задания со статусом status и, если credit истинно,
// начисляет вознаграждение в той же транзакции. Повторное выполнение не создаёт новых записей
// и возвращается с признаком AlreadyCompleted.
func (r *PostgresRepository) CompleteTask(ctx context.Context, userID, taskID int64, status model.CompletionStatus, credit bool) (*model.CompletionResult, error) {
	var res *model.CompletionResult

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		res = nil

		existing, err := scanCompletion(tx.QueryRow(ctx,
			`SELECT `+completionColumns+` FROM task_completions WHERE user_id = $1 AND task_id = $2`,
			userID, taskID,
		))
		switch {
		case err == nil:
			res = &model.CompletionResult{Completion: *existing, Reward: existing.AmountEarned, AlreadyCompleted: true}
			return nil
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("select completion: %w", err)
		}

		var (
			title  string
			reward decimal.Decimal
		)
		err = tx.QueryRow(ctx, `SELECT title, reward FROM tasks WHERE id = $1`, taskID).Scan(&title, &reward)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTaskNotFound
			}
			return fmt.Errorf("select task: %w", err)
		}

		// Уникальный ключ (user_id, task_id) гарантирует единственность записи при конкурентных запросах.
		inserted, err := scanCompletion(tx.QueryRow(ctx,
			`INSERT INTO task_completions (user_id, task_id, amount_earned, status)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (user_id, task_id) DO NOTHING
			 RETURNING `+completionColumns,
			userID, taskID, reward, string(status),
		))
		if err != nil {
			var pgErr *pgconn.PgError
			switch {
			case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation:
				return ErrUserNotFound
			case !errors.Is(err, pgx.ErrNoRows):
				return fmt.Errorf("insert completion: %w", err)
			}

			existing, err := scanCompletion(tx.QueryRow(ctx,
				`SELECT `+completionColumns+` FROM task_completions WHERE user_id = $1 AND task_id = $2`,
				userID, taskID,
			))
			if err != nil {
				return fmt.Errorf("select concurrent completion: %w", err)
			}
			res = &model.CompletionResult{Completion: *existing, TaskTitle: title, Reward: existing.AmountEarned, AlreadyCompleted: true}
			return nil
		}

		res = &model.CompletionResult{Completion: *inserted, TaskTitle: title, Reward: reward}

		if credit {
			c, err := creditTx(ctx, tx, userID, reward, &taskID, "Reward for completing task: "+title)
			if err != nil {
				return err
			}
			res.Credit = &c
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// GetCompletion возвращает запись о выполнении задания пользователем.
func (r *PostgresRepository) GetCompletion(ctx context.Context, userID, taskID int64) (*model.Completion, error) {
	c, err := scanCompletion(r.pool.QueryRow(ctx,
		`SELECT `+completionColumns+` FROM task_completions WHERE user_id = $1 AND task_id = $2`,
		userID, taskID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCompletionNotFound
		}
		return nil, fmt.Errorf("get completion: %w", err)
	}
	return c, nil
}

// GetPendingCompletions возвращает выполнения, ожидающие проверки, начиная с самых старых.
func (r *PostgresRepository) GetPendingCompletions(ctx context.Context, limit int) ([]model.Completion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+completionColumns+`
		 FROM task_completions
		 WHERE status = $1
		 ORDER BY completed_at
		 LIMIT $2`,
		string(model.CompletionStatusPendingVerification), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending completions: %w", err)
	}
	defer rows.Close()

	var res []model.Completion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// ResolveCompletion подтверждает или отклоняет выполнение, ожидающее проверки.
// При подтверждении вознаграждение начисляется в той же транзакции.
func (r *PostgresRepository) ResolveCompletion(ctx context.Context, userID, taskID int64, approve bool) (*model.CompletionResult, error) {
	var res *model.CompletionResult

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		c, err := scanCompletion(tx.QueryRow(ctx,
			`SELECT `+completionColumns+` FROM task_completions WHERE user_id = $1 AND task_id = $2 FOR UPDATE`,
			userID, taskID,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCompletionNotFound
			}
			return fmt.Errorf("lock completion: %w", err)
		}

		if c.Status != model.CompletionStatusPendingVerification {
			return ErrCompletionNotPending
		}

		c.Status = model.CompletionStatusRejected
		if approve {
			c.Status = model.CompletionStatusVerified
		}

		_, err = tx.Exec(ctx,
			`UPDATE task_completions SET status = $3 WHERE user_id = $1 AND task_id = $2`,
			userID, taskID, string(c.Status),
		)
		if err != nil {
			return fmt.Errorf("update completion: %w", err)
		}

		var title string
		err = tx.QueryRow(ctx, `SELECT title FROM tasks WHERE id = $1`, taskID).Scan(&title)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("select task: %w", err)
		}

		res = &model.CompletionResult{Completion: *c, TaskTitle: title, Reward: c.AmountEarned}

		if approve {
			credit, err := creditTx(ctx, tx, userID, c.AmountEarned, &taskID, "Reward for completing task: "+title)
			if err != nil {
				return err
			}
			res.Credit = &credit
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// GetTransactionsByUser возвращает журнал начислений пользователя, новые записи первыми.
func (r *PostgresRepository) GetTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, task_id, amount, type, description, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			t      model.Transaction
			txType string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.TaskID, &t.Amount, &txType, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = model.TransactionType(txType)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
