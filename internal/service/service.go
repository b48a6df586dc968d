// Package service реализует бизнес-логику сервиса вознаграждений за задания.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/task-rewards/internal/model"
	"github.com/mmeshcher/task-rewards/internal/repository"
	"github.com/mmeshcher/task-rewards/internal/validation"
	"github.com/mmeshcher/task-rewards/internal/verifier"
)

var (
	// ErrInvalidCredentials возвращается при любой ошибке входа, не раскрывая, какое поле неверно.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAlreadyCompleted возвращается при повторном выполнении задания с политикой DuplicateReject.
	ErrAlreadyCompleted = errors.New("task already completed")
	// ErrInvalidUser возвращается для отсутствующего идентификатора пользователя.
	ErrInvalidUser = errors.New("user id is required")
	// ErrInvalidAmount возвращается для неположительной суммы или суммы с долями меньше копейки.
	ErrInvalidAmount = validation.ErrInvalidAmount
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	Ping(ctx context.Context) error
	CreateUser(ctx context.Context, nu model.NewUser) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteUser(ctx context.Context, id int64) (bool, error)
	ListTasks(ctx context.Context) ([]model.Task, error)
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	CreateTask(ctx context.Context, nt model.NewTask) (*model.Task, error)
	UpdateTask(ctx context.Context, upd model.TaskUpdate) (*model.Task, error)
	CreditReward(ctx context.Context, userID int64, amount decimal.Decimal, taskID *int64, description string) (model.Credit, error)
	CompleteTask(ctx context.Context, userID, taskID int64, status model.CompletionStatus, credit bool) (*model.CompletionResult, error)
	GetCompletion(ctx context.Context, userID, taskID int64) (*model.Completion, error)
	GetPendingCompletions(ctx context.Context, limit int) ([]model.Completion, error)
	ResolveCompletion(ctx context.Context, userID, taskID int64, approve bool) (*model.CompletionResult, error)
	GetTransactionsByUser(ctx context.Context, userID int64) ([]model.Transaction, error)
}

// AdminCredentials содержит учётные данные администратора из конфигурации.
type AdminCredentials struct {
	Email        string
	PasswordHash []byte
}

// Verifier запрашивает решение внешней системы проверки по выполнению задания.
type Verifier interface {
	Check(ctx context.Context, userID, taskID int64) (verifier.Result, error)
}

// Service содержит бизнес-логику сервиса вознаграждений.
type Service struct {
	repo           Repository
	verifierClient Verifier
	admin          AdminCredentials
	logger         *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом системы проверки заданий.
func NewService(repo Repository, verifierClient Verifier, admin AdminCredentials, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:           repo,
		verifierClient: verifierClient,
		admin:          admin,
		logger:         logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// Ping проверяет доступность хранилища.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// RegisterUser регистрирует нового пользователя. Пароль хранится только в виде bcrypt-хэша.
func (s *Service) RegisterUser(ctx context.Context, email, password, firstName, lastName string) (*model.User, error) {
	hashed, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.CreateUser(ctx, model.NewUser{
		Email:        email,
		PasswordHash: hashed,
		FirstName:    firstName,
		LastName:     lastName,
	})
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, repository.ErrUserExists
		}
		return nil, err
	}
	return u, nil
}

// AuthenticateUser проверяет email и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return u, nil
}

// AuthenticateAdmin проверяет учётные данные администратора.
func (s *Service) AuthenticateAdmin(_ context.Context, email, password string) error {
	if s.admin.Email == "" || len(s.admin.PasswordHash) == 0 || email != s.admin.Email {
		return ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(s.admin.PasswordHash, []byte(password)) != nil {
		return ErrInvalidCredentials
	}
	return nil
}

func hashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hashed, nil
}

// GetBalance возвращает пользователя с текущим балансом.
func (s *Service) GetBalance(ctx context.Context, userID int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// GetTransactions возвращает журнал начислений пользователя.
func (s *Service) GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.repo.GetTransactionsByUser(ctx, userID)
}

// ListUsers возвращает всех пользователей.
func (s *Service) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.ListUsers(ctx)
}

// DeleteUser удаляет пользователя; отсутствие пользователя сообщается через ErrUserNotFound.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	deleted, err := s.repo.DeleteUser(ctx, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return repository.ErrUserNotFound
	}
	return nil
}
