// Package model содержит доменные сущности сервиса вознаграждений за задания.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User представляет зарегистрированного пользователя.
type User struct {
	ID           int64
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	Balance      decimal.Decimal
	TotalEarned  decimal.Decimal
	CreatedAt    time.Time
}

// NewUser содержит данные для создания пользователя.
type NewUser struct {
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
}

// TaskStatus описывает статус задания.
type TaskStatus string

const (
	TaskStatusActive   TaskStatus = "active"
	TaskStatusInactive TaskStatus = "inactive"
)

// Task описывает задание и размер вознаграждения за его выполнение.
type Task struct {
	ID          int64
	Title       string
	Description string
	Reward      decimal.Decimal
	Status      TaskStatus
	Difficulty  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewTask содержит данные для создания задания.
type NewTask struct {
	Title       string
	Description string
	Reward      decimal.Decimal
	Status      TaskStatus
	Difficulty  string
}

// TaskUpdate описывает частичное обновление задания; nil-поля не изменяются.
type TaskUpdate struct {
	ID          int64
	Title       *string
	Description *string
	Reward      *decimal.Decimal
	Status      *TaskStatus
	Difficulty  *string
}

// CompletionStatus описывает состояние записи о выполнении задания.
type CompletionStatus string

const (
	CompletionStatusCompleted           CompletionStatus = "completed"
	CompletionStatusPendingVerification CompletionStatus = "pending_verification"
	CompletionStatusVerified            CompletionStatus = "verified"
	CompletionStatusRejected            CompletionStatus = "rejected"
)

// Completion фиксирует факт выполнения задания пользователем.
type Completion struct {
	UserID       int64
	TaskID       int64
	AmountEarned decimal.Decimal
	Status       CompletionStatus
	CompletedAt  time.Time
}

// TransactionType описывает тип операции начисления.
type TransactionType string

const TransactionTypeTaskReward TransactionType = "task_reward"

// Transaction описывает запись журнала начислений.
type Transaction struct {
	ID          int64
	UserID      int64
	TaskID      *int64
	Amount      decimal.Decimal
	Type        TransactionType
	Description string
	CreatedAt   time.Time
}

// Credit содержит баланс пользователя после начисления.
type Credit struct {
	Balance     decimal.Decimal
	TotalEarned decimal.Decimal
}

// CompletionResult описывает результат выполнения задания.
type CompletionResult struct {
	Completion       Completion
	TaskTitle        string
	Reward           decimal.Decimal
	AlreadyCompleted bool
	// Credit заполняется, только если вознаграждение было начислено.
	Credit *Credit
}

// DuplicatePolicy определяет реакцию на повторное выполнение задания.
type DuplicatePolicy int

const (
	// DuplicateIdempotent возвращает успешный результат без побочных эффектов.
	DuplicateIdempotent DuplicatePolicy = iota
	// DuplicateReject возвращает ошибку.
	DuplicateReject
)
