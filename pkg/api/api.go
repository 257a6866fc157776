// пакет api предоставляет маршрутизатор REST API блога.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rtemka/blog/domain"
	"github.com/rtemka/blog/pkg/moderation"
	"github.com/rtemka/blog/pkg/session"

	"go.uber.org/zap"
)

type ctxKey int

const (
	requestID ctxKey = iota
)

// Sessions - выдача и проверка сессий пользователей.
type Sessions interface {
	session.Resolver
	Issue(w http.ResponseWriter, userID string) error
	Clear(w http.ResponseWriter)
}

// Options - зависимости и настройки [*API].
type Options struct {
	Sessions       Sessions            // обязательно
	Checker        *moderation.Checker // по умолчанию moderation.New()
	AllowedOrigins []string            // источники для CORS, пусто - CORS выключен
	Timeout        time.Duration       // таймаут обращения к БД, по умолчанию 5s
}

// REST API.
type API struct {
	router   *mux.Router
	repo     domain.Repository
	logger   *zap.Logger
	sessions Sessions
	checker  *moderation.Checker
	origins  []string
	timeout  time.Duration
	registry *prometheus.Registry
	metrics  *metrics
	now      func() time.Time
}

// New возвращает [*API].
func New(db domain.Repository, logger *zap.Logger, opts Options) *API {
	api := API{
		router:   mux.NewRouter(),
		repo:     db,
		logger:   logger,
		sessions: opts.Sessions,
		checker:  opts.Checker,
		origins:  opts.AllowedOrigins,
		timeout:  opts.Timeout,
		registry: prometheus.NewRegistry(),
		now:      time.Now,
	}
	if api.checker == nil {
		api.checker = moderation.New()
	}
	if api.timeout <= 0 {
		api.timeout = 5 * time.Second
	}
	api.metrics = newMetrics(api.registry)
	api.endpoints()
	return &api
}

// ServeHTTP - таким образом, мы можем использовать
// сам [*API] в качестве мультиплексора на сервере.
func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.router.ServeHTTP(w, r)
}

func (api *API) endpoints() {
	api.router.Use(
		api.requestIDMiddleware,
		api.wideEventLogMiddleware,
		api.closerMiddleware,
		api.headersMiddleware,
		api.secHeadersMiddleware,
		api.corsMiddleware,
	)
	api.router.HandleFunc("/posts", api.handlePosts()).Methods(http.MethodGet, http.MethodOptions)
	api.router.HandleFunc("/posts/{id}", api.handlePost()).Methods(http.MethodGet, http.MethodOptions)
	api.router.HandleFunc("/posts/{id}/comments", api.handleCommentCreate()).Methods(http.MethodPost, http.MethodOptions)
	api.router.HandleFunc("/posts/{postId}/comments/{commentId}", api.handleCommentUpdate()).Methods(http.MethodPut, http.MethodOptions)
	api.router.HandleFunc("/posts/{postId}/comments/{commentId}", api.handleCommentDelete()).Methods(http.MethodDelete)
	api.router.HandleFunc("/posts/{postId}/comments/{commentId}/toggleLike", api.handleToggleLike()).Methods(http.MethodPost, http.MethodOptions)

	api.router.HandleFunc("/session", api.handleSignIn()).Methods(http.MethodPost, http.MethodOptions)
	api.router.HandleFunc("/session", api.handleMe()).Methods(http.MethodGet)
	api.router.HandleFunc("/session", api.handleSignOut()).Methods(http.MethodDelete)

	api.router.HandleFunc("/healthz", api.handleHealth()).Methods(http.MethodGet)
	api.router.Handle("/metrics", promhttp.HandlerFor(api.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Registry возвращает реестр метрик API.
func (api *API) Registry() *prometheus.Registry {
	return api.registry
}

// statusOf сопоставляет вид ошибки и код ответа.
func statusOf(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindAuth:
		return http.StatusUnauthorized
	case domain.KindPermission:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Fail пишет ошибку с кодом ответа, соответствующим ее виду.
func (api *API) Fail(w http.ResponseWriter, err error) {
	api.WriteJSONError(w, err, statusOf(err))
}

func (api *API) WriteJSONError(w http.ResponseWriter, err error, code int) {
	w.WriteHeader(code)
	if wrw, ok := w.(*wideResponseWriter); ok {
		wrw.internalErr = err
	}
	msg := domain.Message(err)
	if code == http.StatusInternalServerError {
		msg = domain.ErrInternal.Error()
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (api *API) WriteJSON(w http.ResponseWriter, data any, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// decode читает JSON из тела запроса.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &domain.Error{Kind: domain.KindValidation, Message: "invalid request body", Err: err}
	}
	return nil
}

// userID возвращает id пользователя запроса.
// Ошибка сессии всегда имеет вид domain.ErrAuth.
func (api *API) userID(r *http.Request) (string, error) {
	id, err := api.sessions.UserID(r)
	if err != nil {
		if !errors.Is(err, domain.ErrAuth) {
			err = &domain.Error{Kind: domain.KindAuth, Message: "You are not signed in", Err: err}
		}
		return "", err
	}
	return id, nil
}
