// Package verifier предоставляет клиент для внешней системы проверки выполнения заданий.
package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Статусы проверки, возвращаемые внешней системой.
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// defaultRetryAfter используется, когда ответ 429 пришёл без пригодного заголовка Retry-After.
const defaultRetryAfter = time.Second

var (
	// ErrNotConfigured возвращается клиентом без адреса системы проверки.
	ErrNotConfigured = errors.New("verifier client not configured")
	// ErrUnexpectedResponse возвращается для неизвестного HTTP-статуса или статуса проверки.
	ErrUnexpectedResponse = errors.New("unexpected verifier response")
)

// Outcome описывает, что удалось узнать о выполнении за один запрос.
type Outcome int

const (
	// OutcomeUnknown означает, что решения пока нет: проверка не найдена или ещё идёт.
	OutcomeUnknown Outcome = iota
	// OutcomeApproved означает, что выполнение подтверждено.
	OutcomeApproved
	// OutcomeRejected означает, что выполнение отклонено.
	OutcomeRejected
	// OutcomeRateLimited означает, что система проверки просит повторить запрос позже.
	OutcomeRateLimited
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeRejected:
		return "rejected"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Result содержит итог одного запроса к системе проверки.
type Result struct {
	Outcome Outcome
	// RetryAfter задан только для OutcomeRateLimited.
	RetryAfter time.Duration
}

// Decided сообщает, вынесено ли окончательное решение.
func (r Result) Decided() bool {
	return r.Outcome == OutcomeApproved || r.Outcome == OutcomeRejected
}

// Client инкапсулирует HTTP-взаимодействие с системой проверки.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

type verificationResponse struct {
	UserID int64  `json:"userId"`
	TaskID int64  `json:"taskId"`
	Status string `json:"status"`
}

// NewClient создаёт клиент системы проверки. Адрес без схемы дополняется http://.
// Для пустого или неразбираемого адреса возвращается ErrNotConfigured.
func NewClient(address string) (*Client, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, ErrNotConfigured
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}

	base, err := url.Parse(address)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid address %q", ErrNotConfigured, address)
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}, nil
}

// Check запрашивает результат проверки выполнения задания taskID пользователем userID.
func (c *Client) Check(ctx context.Context, userID, taskID int64) (Result, error) {
	if c == nil || c.baseURL == nil {
		return Result{}, ErrNotConfigured
	}

	endpoint := c.baseURL.JoinPath("api", "verifications",
		strconv.FormatInt(userID, 10), strconv.FormatInt(taskID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNoContent, http.StatusNotFound:
		return Result{Outcome: OutcomeUnknown}, nil
	case http.StatusTooManyRequests:
		return Result{
			Outcome:    OutcomeRateLimited,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}, nil
	default:
		return Result{}, fmt.Errorf("%w: HTTP %d", ErrUnexpectedResponse, resp.StatusCode)
	}

	var body verificationResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}

	switch strings.ToUpper(body.Status) {
	case StatusApproved:
		return Result{Outcome: OutcomeApproved}, nil
	case StatusRejected:
		return Result{Outcome: OutcomeRejected}, nil
	case StatusPending:
		return Result{Outcome: OutcomeUnknown}, nil
	default:
		return Result{}, fmt.Errorf("%w: status %q", ErrUnexpectedResponse, body.Status)
	}
}

// parseRetryAfter разбирает Retry-After в секундах или в формате HTTP-даты.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}

	if seconds, err := strconv.Atoi(v); err == nil {
		if seconds <= 0 {
			return defaultRetryAfter
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return defaultRetryAfter
}
