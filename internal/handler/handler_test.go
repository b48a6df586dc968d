package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mmeshcher/task-rewards/internal/middleware"
	"github.com/mmeshcher/task-rewards/internal/model"
	"github.com/mmeshcher/task-rewards/internal/repository"
	"github.com/mmeshcher/task-rewards/internal/service"
)

type stubService struct {
	pingErr error

	registerUser *model.User
	registerErr  error

	authUser *model.User
	authErr  error

	adminErr error

	balanceUser *model.User
	balanceErr  error

	transactions []model.Transaction

	users     []model.User
	deleteErr error

	tasks     []model.Task
	task      *model.Task
	taskErr   error
	updateErr error

	credit      model.Credit
	creditErr   error
	creditCalls int

	completeRes  *model.CompletionResult
	completeErr  error
	completeOpts service.CompleteOptions

	completed  bool
	completion *model.Completion
	statusErr  error

	resolveRes *model.CompletionResult
	resolveErr error
}

func (s *stubService) Ping(ctx context.Context) error { return s.pingErr }

func (s *stubService) RegisterUser(ctx context.Context, email, password, firstName, lastName string) (*model.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) AuthenticateAdmin(ctx context.Context, email, password string) error {
	return s.adminErr
}

func (s *stubService) GetBalance(ctx context.Context, userID int64) (*model.User, error) {
	return s.balanceUser, s.balanceErr
}

func (s *stubService) GetTransactions(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.transactions, nil
}

func (s *stubService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.users, nil
}

func (s *stubService) DeleteUser(ctx context.Context, userID int64) error {
	return s.deleteErr
}

func (s *stubService) ListTasks(ctx context.Context) ([]model.Task, error) {
	return s.tasks, nil
}

func (s *stubService) GetTask(ctx context.Context, taskID int64) (*model.Task, error) {
	return s.task, s.taskErr
}

func (s *stubService) CreateTask(ctx context.Context, nt model.NewTask) (*model.Task, error) {
	return &model.Task{ID: 1, Title: nt.Title, Reward: nt.Reward, Status: model.TaskStatusActive}, nil
}

func (s *stubService) UpdateTask(ctx context.Context, upd model.TaskUpdate) (*model.Task, error) {
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return &model.Task{ID: upd.ID, Title: *upd.Title}, nil
}

func (s *stubService) CreditReward(ctx context.Context, userID int64, amount decimal.Decimal, taskID *int64, description string) (model.Credit, error) {
	s.creditCalls++
	return s.credit, s.creditErr
}

func (s *stubService) CompleteTask(ctx context.Context, userID, taskID int64, opts service.CompleteOptions) (*model.CompletionResult, error) {
	s.completeOpts = opts
	return s.completeRes, s.completeErr
}

func (s *stubService) GetCompletionStatus(ctx context.Context, userID, taskID int64) (bool, *model.Completion, error) {
	return s.completed, s.completion, s.statusErr
}

func (s *stubService) ResolveCompletion(ctx context.Context, userID, taskID int64, approve bool) (*model.CompletionResult, error) {
	return s.resolveRes, s.resolveErr
}

func newTestServer(t *testing.T, svc Service) (*httptest.Server, *middleware.AuthMiddleware) {
	t.Helper()

	auth := middleware.NewAuthMiddleware("test-secret", time.Hour)
	h := NewHandler(svc, zap.NewNop(), auth)

	srv := httptest.NewServer(h.SetupRouter())
	t.Cleanup(srv.Close)
	return srv, auth
}

func doRequest(t *testing.T, method, url, body string, header http.Header) (*http.Response, []byte) {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}

	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

type testEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func decodeEnvelope(t *testing.T, body []byte) testEnvelope {
	t.Helper()
	var env testEnvelope
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	return env
}

func bearer(token string) http.Header {
	return http.Header{"Authorization": {"Bearer " + token}}
}

func TestSignup(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svc        *stubService
		wantStatus int
		wantError  string
	}{
		{
			name:       "success",
			body:       `{"email":"a@example.com","password":"pw","firstName":"Ann","lastName":"Lee"}`,
			svc:        &stubService{registerUser: &model.User{ID: 5, Email: "a@example.com", FirstName: "Ann"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "duplicate email",
			body:       `{"email":"a@example.com","password":"pw"}`,
			svc:        &stubService{registerErr: repository.ErrUserExists},
			wantStatus: http.StatusConflict,
			wantError:  "User with this email already exists",
		},
		{
			name:       "missing password",
			body:       `{"email":"a@example.com"}`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
			wantError:  "Email and password are required",
		},
		{
			name:       "invalid email",
			body:       `{"email":"not-an-email","password":"pw"}`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid email address",
		},
		{
			name:       "malformed json",
			body:       `{`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.svc)

			res, body := doRequest(t, http.MethodPost, srv.URL+"/api/user/signup", tt.body, nil)
			assert.Equal(t, tt.wantStatus, res.StatusCode)

			env := decodeEnvelope(t, body)
			assert.Equal(t, tt.wantError == "", env.Success)
			assert.Equal(t, tt.wantError, env.Error)
		})
	}
}

func TestLogin(t *testing.T) {
	t.Run("invalid credentials", func(t *testing.T) {
		srv, _ := newTestServer(t, &stubService{authErr: service.ErrInvalidCredentials})

		res, body := doRequest(t, http.MethodPost, srv.URL+"/api/user/login", `{"email":"a@example.com","password":"x"}`, nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
		assert.Equal(t, "Invalid email or password", decodeEnvelope(t, body).Error)
		assert.Empty(t, res.Cookies())
	})

	t.Run("success sets session", func(t *testing.T) {
		svc := &stubService{
			authUser: &model.User{ID: 9, Email: "a@example.com", FirstName: "Ann", Balance: decimal.RequireFromString("12.5")},
			balanceUser: &model.User{
				ID:          9,
				Balance:     decimal.RequireFromString("12.5"),
				TotalEarned: decimal.RequireFromString("40"),
			},
		}
		srv, _ := newTestServer(t, svc)

		res, body := doRequest(t, http.MethodPost, srv.URL+"/api/user/login", `{"email":"a@example.com","password":"pw"}`, nil)
		require.Equal(t, http.StatusOK, res.StatusCode)

		env := decodeEnvelope(t, body)
		assert.Equal(t, "Login successful!", env.Message)

		var data struct {
			Token string `json:"token"`
			User  struct {
				ID        int64   `json:"id"`
				FirstName string  `json:"firstName"`
				Balance   float64 `json:"balance"`
			} `json:"user"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.NotEmpty(t, data.Token)
		assert.Equal(t, int64(9), data.User.ID)
		assert.Equal(t, "Ann", data.User.FirstName)
		assert.InDelta(t, 12.5, data.User.Balance, 1e-9)

		cookies := res.Cookies()
		require.Len(t, cookies, 1)

		req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/user/balance", nil)
		require.NoError(t, err)
		req.AddCookie(cookies[0])
		balRes, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer balRes.Body.Close()
		balBody, err := io.ReadAll(balRes.Body)
		require.NoError(t, err)

		require.Equal(t, http.StatusOK, balRes.StatusCode)
		assert.JSONEq(t, `{"balance":12.5,"totalEarned":40}`, string(decodeEnvelope(t, balBody).Data))
	})
}

func TestUserRoutesRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})

	for _, path := range []string{"/api/user/balance", "/api/user/transactions"} {
		res, body := doRequest(t, http.MethodGet, srv.URL+path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, path)
		assert.False(t, decodeEnvelope(t, body).Success)
	}
}

func TestGetTransactions(t *testing.T) {
	taskID := int64(3)
	svc := &stubService{transactions: []model.Transaction{{
		ID:          1,
		UserID:      4,
		TaskID:      &taskID,
		Amount:      decimal.RequireFromString("50"),
		Type:        model.TransactionTypeTaskReward,
		Description: "Reward for completing task: Follow",
		CreatedAt:   time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	srv, auth := newTestServer(t, svc)

	token, err := auth.IssueUserToken(4)
	require.NoError(t, err)

	res, body := doRequest(t, http.MethodGet, srv.URL+"/api/user/transactions", "", bearer(token))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `[{
		"id": 1,
		"taskId": 3,
		"amount": 50,
		"type": "task_reward",
		"description": "Reward for completing task: Follow",
		"createdAt": "2025-01-02T03:04:05Z"
	}]`, string(decodeEnvelope(t, body).Data))
}

func TestListTasks(t *testing.T) {
	svc := &stubService{tasks: []model.Task{
		{ID: 1, Title: "Follow", Reward: decimal.RequireFromString("50"), Status: model.TaskStatusActive},
		{ID: 2, Title: "Share", Reward: decimal.RequireFromString("7.25"), Status: model.TaskStatusInactive},
	}}
	srv, _ := newTestServer(t, svc)

	for _, path := range []string{"/api/tasks", "/api/tasks/"} {
		res, body := doRequest(t, http.MethodGet, srv.URL+path, "", nil)
		require.Equal(t, http.StatusOK, res.StatusCode, path)

		var tasks []taskResponse
		require.NoError(t, json.Unmarshal(decodeEnvelope(t, body).Data, &tasks))
		require.Len(t, tasks, 2)
		assert.Equal(t, "inactive", tasks[1].Status)
		assert.InDelta(t, 7.25, tasks[1].Reward, 1e-9)
	}
}

func TestCompleteTaskManually(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantError  string
	}{
		{name: "success", body: `{"taskId":1,"userId":2}`, wantStatus: http.StatusOK},
		{name: "string ids", body: `{"taskId":"1","userId":"2"}`, wantStatus: http.StatusOK},
		{name: "duplicate", body: `{"taskId":1,"userId":2}`, err: service.ErrAlreadyCompleted,
			wantStatus: http.StatusBadRequest, wantError: "You have already completed this task"},
		{name: "task missing", body: `{"taskId":1,"userId":2}`, err: repository.ErrTaskNotFound,
			wantStatus: http.StatusNotFound, wantError: "Task not found"},
		{name: "ids missing", body: `{"taskId":1}`,
			wantStatus: http.StatusBadRequest, wantError: "Task ID and User ID are required"},
		{name: "negative id", body: `{"taskId":-1,"userId":2}`,
			wantStatus: http.StatusBadRequest, wantError: "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				completeErr: tt.err,
				completeRes: &model.CompletionResult{Completion: model.Completion{
					UserID: 2, TaskID: 1, Status: model.CompletionStatusPendingVerification,
					AmountEarned: decimal.RequireFromString("50"),
				}},
			}
			srv, _ := newTestServer(t, svc)

			res, body := doRequest(t, http.MethodPost, srv.URL+"/api/tasks/complete-manually", tt.body, nil)
			assert.Equal(t, tt.wantStatus, res.StatusCode)

			env := decodeEnvelope(t, body)
			assert.Equal(t, tt.wantError, env.Error)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "Task marked as completed! Reward pending verification.", env.Message)
				assert.True(t, svc.completeOpts.Manual)
				assert.Equal(t, model.DuplicateReject, svc.completeOpts.OnDuplicate)
			}
		})
	}
}

func TestGetCompletionStatus(t *testing.T) {
	svc := &stubService{
		completed: true,
		completion: &model.Completion{
			UserID: 2, TaskID: 1, Status: model.CompletionStatusCompleted,
			AmountEarned: decimal.RequireFromString("50"),
			CompletedAt:  time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		},
	}
	srv, _ := newTestServer(t, svc)

	res, body := doRequest(t, http.MethodGet, srv.URL+"/api/tasks/completion?userId=2&taskId=1", "", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{
		"completed": true,
		"completionData": {"userId":2,"taskId":1,"amountEarned":50,"status":"completed","completedAt":"2025-01-02T03:04:05Z"}
	}`, string(decodeEnvelope(t, body).Data))

	res, body = doRequest(t, http.MethodGet, srv.URL+"/api/tasks/completion?userId=2", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "User ID and Task ID are required", decodeEnvelope(t, body).Error)

	res, _ = doRequest(t, http.MethodGet, srv.URL+"/api/tasks/completion?userId=abc&taskId=1", "", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestInternalErrorsDoNotLeakStoreText(t *testing.T) {
	svc := &stubService{statusErr: errors.New(`pq: relation "task_completions" does not exist`)}
	srv, _ := newTestServer(t, svc)

	res, body := doRequest(t, http.MethodGet, srv.URL+"/api/tasks/completion?userId=2&taskId=1", "", nil)
	assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "Internal server error", decodeEnvelope(t, body).Error)
	assert.NotContains(t, string(body), "task_completions")
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	srv, auth := newTestServer(t, &stubService{})

	userToken, err := auth.IssueUserToken(1)
	require.NoError(t, err)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/api/admin/users"},
		{http.MethodPost, "/api/admin/users/delete"},
		{http.MethodPost, "/api/admin/tasks"},
		{http.MethodPut, "/api/admin/tasks"},
		{http.MethodPost, "/api/admin/rewards"},
		{http.MethodPost, "/api/admin/completions/verify"},
	}

	for _, rt := range routes {
		res, _ := doRequest(t, rt.method, srv.URL+rt.path, `{}`, nil)
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "%s %s without token", rt.method, rt.path)

		res, _ = doRequest(t, rt.method, srv.URL+rt.path, `{}`, bearer(userToken))
		assert.Equal(t, http.StatusUnauthorized, res.StatusCode, "%s %s with user token", rt.method, rt.path)
	}
}

func TestAdminLoginAndAddReward(t *testing.T) {
	svc := &stubService{credit: model.Credit{
		Balance:     decimal.RequireFromString("150"),
		TotalEarned: decimal.RequireFromString("250"),
	}}
	srv, _ := newTestServer(t, svc)

	res, body := doRequest(t, http.MethodPost, srv.URL+"/api/admin/login", `{"email":"admin@example.com","password":"pw"}`, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var session struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, body).Data, &session))
	require.NotEmpty(t, session.Token)

	res, body = doRequest(t, http.MethodPost, srv.URL+"/api/admin/rewards",
		`{"userId":4,"amount":50,"taskId":1}`, bearer(session.Token))
	require.Equal(t, http.StatusOK, res.StatusCode)

	env := decodeEnvelope(t, body)
	assert.Equal(t, "Reward added successfully", env.Message)
	assert.JSONEq(t, `{"newBalance":150,"newTotalEarned":250}`, string(env.Data))

	res, body = doRequest(t, http.MethodPost, srv.URL+"/api/admin/rewards", `{"userId":4}`, bearer(session.Token))
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "User ID and amount are required", decodeEnvelope(t, body).Error)
	assert.Equal(t, 1, svc.creditCalls)
}

func TestAdminLogin_Invalid(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{adminErr: service.ErrInvalidCredentials})

	res, body := doRequest(t, http.MethodPost, srv.URL+"/api/admin/login", `{"email":"x@example.com","password":"pw"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.Equal(t, "Invalid admin credentials", decodeEnvelope(t, body).Error)
}

func adminToken(t *testing.T, auth *middleware.AuthMiddleware) http.Header {
	t.Helper()
	token, err := auth.IssueAdminToken("admin@example.com")
	require.NoError(t, err)
	return bearer(token)
}

func TestAdminTaskAndUserErrors(t *testing.T) {
	svc := &stubService{
		updateErr:  repository.ErrTaskNotFound,
		deleteErr:  repository.ErrUserNotFound,
		resolveErr: repository.ErrCompletionNotPending,
	}
	srv, auth := newTestServer(t, svc)
	admin := adminToken(t, auth)

	res, body := doRequest(t, http.MethodPut, srv.URL+"/api/admin/tasks", `{"taskId":77,"title":"x"}`, admin)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "Task not found", decodeEnvelope(t, body).Error)

	res, body = doRequest(t, http.MethodPut, srv.URL+"/api/admin/tasks", `{"title":"x"}`, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Task ID is required", decodeEnvelope(t, body).Error)

	res, _ = doRequest(t, http.MethodPut, srv.URL+"/api/admin/tasks", `{"taskId":77,"status":"archived"}`, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = doRequest(t, http.MethodPost, srv.URL+"/api/admin/users/delete", `{"userId":5}`, admin)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "User not found", decodeEnvelope(t, body).Error)

	res, _ = doRequest(t, http.MethodPost, srv.URL+"/api/admin/completions/verify", `{"userId":5,"taskId":1,"approve":true}`, admin)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = doRequest(t, http.MethodPost, srv.URL+"/api/admin/tasks", `{"title":"New","reward":0}`, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = doRequest(t, http.MethodPost, srv.URL+"/api/admin/tasks", `{"title":"New","reward":"12.50"}`, admin)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	var task taskResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, body).Data, &task))
	assert.InDelta(t, 12.5, task.Reward, 1e-9)
}

func TestAdminRejectsSubCentAmounts(t *testing.T) {
	svc := &stubService{}
	srv, auth := newTestServer(t, svc)
	admin := adminToken(t, auth)

	res, body := doRequest(t, http.MethodPost, srv.URL+"/api/admin/tasks", `{"title":"New","reward":0.001}`, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Reward must be a positive number with at most two decimal places", decodeEnvelope(t, body).Error)

	res, _ = doRequest(t, http.MethodPut, srv.URL+"/api/admin/tasks", `{"taskId":1,"reward":"5.005"}`, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, body = doRequest(t, http.MethodPost, srv.URL+"/api/admin/rewards", `{"userId":4,"amount":0.004}`, admin)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "Amount must be a positive number with at most two decimal places", decodeEnvelope(t, body).Error)
	assert.Zero(t, svc.creditCalls)
}

func TestAdminActionsAreLogged(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	auth := middleware.NewAuthMiddleware("test-secret", time.Hour)
	h := NewHandler(&stubService{}, zap.New(core), auth)

	srv := httptest.NewServer(h.SetupRouter())
	t.Cleanup(srv.Close)

	res, _ := doRequest(t, http.MethodPost, srv.URL+"/api/admin/rewards", `{"userId":4,"amount":"12.50"}`, adminToken(t, auth))
	require.Equal(t, http.StatusOK, res.StatusCode)

	entries := logs.FilterMessage("admin action").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "add reward", fields["action"])
	assert.Equal(t, "admin@example.com", fields["admin"])
	assert.Equal(t, int64(4), fields["userID"])
	assert.Equal(t, "12.5", fields["amount"])
}

func TestRouterFallbacks(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})

	res, body := doRequest(t, http.MethodGet, srv.URL+"/api/user/signup", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	env := decodeEnvelope(t, body)
	assert.False(t, env.Success)
	assert.Equal(t, "Method Not Allowed", env.Error)

	res, body = doRequest(t, http.MethodGet, srv.URL+"/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.False(t, decodeEnvelope(t, body).Success)

	res, body = doRequest(t, http.MethodOptions, srv.URL+"/api/tasks/complete-manually", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
	assert.JSONEq(t, `{"message":"CORS preflight successful"}`, string(body))
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	res, _ := doRequest(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	srv, _ = newTestServer(t, &stubService{pingErr: errors.New("down")})
	res, _ = doRequest(t, http.MethodGet, srv.URL+"/api/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
}
