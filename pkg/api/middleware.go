package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

type wideResponseWriter struct {
	http.ResponseWriter
	length, status int
	internalErr    error
}

func (w *wideResponseWriter) WriteHeader(status int) {
	w.ResponseWriter.WriteHeader(status)
	w.status = status
}

func (w *wideResponseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.length += n
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return n, err
}

// closerMiddleware считывает и закрывает тело запроса
// для повторного использования TCP-соединения.
func (api *API) closerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		_, _ = io.Copy(io.Discard, r.Body)
		_ = r.Body.Close()
	})
}

// requestIDMiddleware извлекает id запроса из заголовка или параметров запроса.
// В случае если id запроса отсутствует, id генерируется.
// Далее id добавляется в контекст запроса и в заголовок ответа.
func (api *API) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" {
			rid = r.URL.Query().Get("request-id")
		}
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)
		ctxWithID := context.WithValue(r.Context(), requestID, rid)
		next.ServeHTTP(w, r.WithContext(ctxWithID))
	})
}

// wideEventLogMiddleware собирает и регистрирует информацию о полученном запросе
// и обновляет метрики.
func (api *API) wideEventLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := api.now()
		wideWriter := &wideResponseWriter{ResponseWriter: w}

		next.ServeHTTP(wideWriter, r)

		elapsed := api.now().Sub(start)
		api.metrics.observe(r, wideWriter.status, elapsed)

		addr, _, _ := net.SplitHostPort(r.RemoteAddr)
		api.logger.Info("request received",
			zap.Any("request_id", r.Context().Value(requestID)),
			zap.Int("status_code", wideWriter.status),
			zap.Int("response_length", wideWriter.length),
			zap.Int64("content_length", r.ContentLength),
			zap.Duration("elapsed", elapsed),
			zap.String("method", r.Method),
			zap.String("proto", r.Proto),
			zap.String("remote_addr", addr),
			zap.String("uri", r.RequestURI),
			zap.String("user_agent", r.UserAgent()),
			zap.Error(wideWriter.internalErr),
		)
	})
}

// headersMiddleware задает обычные заголовки для всех ответов.
func (api *API) headersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json;charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// secHeadersMiddleware устанавливает строгие заголовки безопасности для всех ответов.
func (api *API) secHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "0")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; sandbox")
		w.Header().Set("Server", "") // удаляет информацию о том, какой сервер используется
		next.ServeHTTP(w, r)
	})
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = strings.Join([]string{"Content-Type", "Accept", "Origin", requestIDHeader}, ", ")
)

// corsMiddleware разрешает запросы с cookie от клиентских приложений
// из списка AllowedOrigins. Preflight-запросы дальше не передаются.
func (api *API) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && api.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", corsMethods)
			w.Header().Set("Access-Control-Allow-Headers", corsHeaders)
			w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
			w.Header().Set("Access-Control-Max-Age", strconv.Itoa(int((24 * time.Hour).Seconds())))
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (api *API) originAllowed(origin string) bool {
	for _, o := range api.origins {
		if o == origin {
			return true
		}
	}
	return false
}
