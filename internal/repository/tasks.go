package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/task-rewards/internal/model"
)

const taskColumns = `id, title, description, reward, status, difficulty, created_at, updated_at`

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t      model.Task
		status string
	)

	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Reward, &status, &t.Difficulty, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)

	return &t, nil
}

// ListTasks возвращает все задания в порядке создания.
func (r *PostgresRepository) ListTasks(ctx context.Context) ([]model.Task, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

// GetTask возвращает задание по идентификатору.
func (r *PostgresRepository) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// CreateTask создаёт новое задание.
func (r *PostgresRepository) CreateTask(ctx context.Context, nt model.NewTask) (*model.Task, error) {
	status := nt.Status
	if status == "" {
		status = model.TaskStatusActive
	}

	t, err := scanTask(r.pool.QueryRow(ctx,
		`INSERT INTO tasks (title, description, reward, status, difficulty)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+taskColumns,
		nt.Title, nt.Description, nt.Reward, string(status), nt.Difficulty,
	))
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// UpdateTask обновляет заданные поля задания и отметку времени изменения.
func (r *PostgresRepository) UpdateTask(ctx context.Context, upd model.TaskUpdate) (*model.Task, error) {
	var status *string
	if upd.Status != nil {
		s := string(*upd.Status)
		status = &s
	}

	t, err := scanTask(r.pool.QueryRow(ctx,
		`UPDATE tasks SET
		     title       = COALESCE($2, title),
		     description = COALESCE($3, description),
		     reward      = COALESCE($4, reward),
		     status      = COALESCE($5, status),
		     difficulty  = COALESCE($6, difficulty),
		     updated_at  = NOW()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		upd.ID, upd.Title, upd.Description, upd.Reward, status, upd.Difficulty,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return t, nil
}
