// пакет session определяет, от имени какого пользователя пришел запрос.
//
// API зависит только от [Resolver]. [Manager] - простая реализация
// для разработки: подписанный HS256 токен в cookie, в subject лежит id пользователя.
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rtemka/blog/domain"
)

// CookieName - имя cookie с токеном сессии.
const CookieName = "blog-session"

var ErrNoSession = domain.Auth("You are not signed in")

// Resolver возвращает id пользователя, от имени которого сделан запрос,
// или ошибку вида domain.ErrAuth.
type Resolver interface {
	UserID(r *http.Request) (string, error)
}

// Static всегда возвращает одного и того же пользователя.
type Static string

func (s Static) UserID(_ *http.Request) (string, error) {
	if s == "" {
		return "", ErrNoSession
	}
	return string(s), nil
}

// Manager выдает и проверяет cookie сессии.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	Secure bool // выставлять флаг Secure у cookie
}

// New возвращает [*Manager].
func New(secret string, ttl time.Duration) (*Manager, error) {
	if len(secret) < 16 {
		return nil, errors.New("session: secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("session: ttl must be positive")
	}
	return &Manager{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue подписывает токен для userID и устанавливает cookie.
func (m *Manager) Issue(w http.ResponseWriter, userID string) error {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return fmt.Errorf("session: sign token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    tok,
		Path:     "/",
		Expires:  now.Add(m.ttl),
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear удаляет cookie сессии.
func (m *Manager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// UserID проверяет токен из cookie и возвращает id пользователя.
func (m *Manager) UserID(r *http.Request) (string, error) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return "", ErrNoSession
	}

	var claims jwt.RegisteredClaims
	_, err = jwt.ParseWithClaims(c.Value, &claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || claims.Subject == "" {
		return "", &domain.Error{Kind: domain.KindAuth, Message: "Session is invalid or expired", Err: err}
	}

	return claims.Subject, nil
}
