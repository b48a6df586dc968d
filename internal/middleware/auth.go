// Package middleware содержит HTTP middleware для сервиса вознаграждений.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const (
	userIDKey     contextKey = "userID"
	adminEmailKey contextKey = "adminEmail"
)

const (
	authCookieName  = "auth_token"
	defaultTokenTTL = 24 * time.Hour
)

// Роли, записываемые в токен сессии.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

var errInvalidToken = errors.New("invalid token")

type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware выпускает и проверяет токены сессий, подписанные HS256.
type AuthMiddleware struct {
	secretKey []byte
	ttl       time.Duration
}

// NewAuthMiddleware создаёт AuthMiddleware с секретным ключом и временем жизни токена.
// При пустом секрете генерируется случайный ключ, и токены не переживают перезапуск.
func NewAuthMiddleware(secret string, ttl time.Duration) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			panic(fmt.Sprintf("generate auth key: %v", err))
		}
		key = randomKey
	}

	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	return &AuthMiddleware{
		secretKey: key,
		ttl:       ttl,
	}
}

// IssueToken выпускает токен для субъекта subject с ролью role.
func (a *AuthMiddleware) IssueToken(subject, role string) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// IssueUserToken выпускает токен пользователя.
func (a *AuthMiddleware) IssueUserToken(userID int64) (string, error) {
	return a.IssueToken(strconv.FormatInt(userID, 10), RoleUser)
}

// IssueAdminToken выпускает токен администратора.
func (a *AuthMiddleware) IssueAdminToken(email string) (string, error) {
	return a.IssueToken(email, RoleAdmin)
}

// SetAuthCookie выпускает токен пользователя, устанавливает его в cookie и возвращает.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, userID int64) (string, error) {
	token, err := a.IssueUserToken(userID)
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return token, nil
}

func (a *AuthMiddleware) parseToken(raw string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, errInvalidToken
	}
	return claims, nil
}

// Middleware пропускает запросы с действующим токеном пользователя из cookie или заголовка
// Authorization и добавляет идентификатор пользователя в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			if cookie, err := r.Cookie(authCookieName); err == nil {
				raw = cookie.Value
			}
		}
		if raw == "" {
			writeUnauthorized(w)
			return
		}

		claims, err := a.parseToken(raw)
		if err != nil || claims.Role != RoleUser {
			writeUnauthorized(w)
			return
		}

		userID, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil || userID <= 0 {
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin пропускает только запросы с токеном администратора в заголовке Authorization.
func (a *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeUnauthorized(w)
			return
		}

		claims, err := a.parseToken(raw)
		if err != nil || claims.Role != RoleAdmin {
			writeUnauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), adminEmailKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   "Unauthorized",
	})
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// GetAdminEmailFromContext извлекает email администратора из контекста запроса.
func GetAdminEmailFromContext(ctx context.Context) (string, bool) {
	email, ok := ctx.Value(adminEmailKey).(string)
	return email, ok
}
