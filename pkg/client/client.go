// пакет client - HTTP клиент REST API блога.
//
// Ошибки клиента имеют тип *domain.Error: вид определяется
// кодом ответа, сообщение берется из тела ответа сервера.
// Сетевые ошибки и таймауты имеют вид domain.KindTransport.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rtemka/blog/domain"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout - таймаут одного запроса по умолчанию.
const DefaultTimeout = 10 * time.Second

// PostsPage - страница списка постов.
type PostsPage struct {
	TotalPages int                  `json:"total_pages"`
	PageSize   int                  `json:"page_size"`
	PageNumber int                  `json:"page_number"`
	Posts      []domain.PostSummary `json:"page"`
}

// Client выполняет запросы к API. Cookie сессии хранятся в jar,
// поэтому после Login запросы идут от имени пользователя.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

// Option настраивает [*Client].
type Option func(*Client)

// WithTimeout задает таймаут одного запроса.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient подменяет http.Client. Если у него нет Jar,
// будет установлен новый.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New возвращает [*Client] для API по адресу baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: base url %q must be absolute", baseURL)
	}

	c := Client{base: u, http: &http.Client{}, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, err
		}
		c.http.Jar = jar
	}
	return &c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path += path
	u.RawQuery = query.Encode()
	return u.String()
}

// makeRequest выполняет запрос и возвращает ответ с кодом 2xx
// или ошибку domain.
func (c *Client) makeRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, domain.Internal(err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), rd)
	if err != nil {
		return nil, domain.Internal(err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.Transport(err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer func() {
		_ = resp.Body.Close()
	}()
	return nil, decodeError(resp)
}

// decodeError превращает ответ с ошибкой в *domain.Error.
func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body)
	msg := body.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var kind domain.Kind
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		kind = domain.KindValidation
	case resp.StatusCode == http.StatusUnauthorized:
		kind = domain.KindAuth
	case resp.StatusCode == http.StatusForbidden:
		kind = domain.KindPermission
	case resp.StatusCode == http.StatusNotFound:
		kind = domain.KindNotFound
	case resp.StatusCode == http.StatusBadGateway, resp.StatusCode == http.StatusGatewayTimeout,
		resp.StatusCode == http.StatusServiceUnavailable:
		kind = domain.KindTransport
	default:
		kind = domain.KindInternal
	}
	return &domain.Error{Kind: kind, Message: msg, Err: fmt.Errorf("http status %d", resp.StatusCode)}
}

func jsonDecFunc[T any](r io.ReadCloser) (T, error) {
	defer func() {
		_ = r.Close()
	}()
	var t T
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return t, domain.Transport(fmt.Errorf("decode response: %w", err))
	}
	return t, nil
}

// call выполняет запрос с таймаутом клиента и декодирует ответ в T.
func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (T, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.makeRequest(ctx, method, path, query, body)
	if err != nil {
		var t T
		return t, err
	}
	return jsonDecFunc[T](resp.Body)
}

func commentPath(postID, commentID string) string {
	return "/posts/" + url.PathEscape(postID) + "/comments/" + url.PathEscape(commentID)
}

// Login входит под именем name (вход для разработки).
func (c *Client) Login(ctx context.Context, name string) (domain.User, error) {
	return call[domain.User](ctx, c, http.MethodPost, "/session", nil, map[string]string{"name": name})
}

// Me возвращает текущего пользователя.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	return call[domain.User](ctx, c, http.MethodGet, "/session", nil, nil)
}

// Logout завершает сессию.
func (c *Client) Logout(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.makeRequest(ctx, http.MethodDelete, "/session", nil, nil)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Posts возвращает страницу списка постов, нумерация с 1.
func (c *Client) Posts(ctx context.Context, page int) (PostsPage, error) {
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	return call[PostsPage](ctx, c, http.MethodGet, "/posts", q, nil)
}

// Post возвращает пост с комментариями.
func (c *Client) Post(ctx context.Context, id string) (domain.Post, error) {
	return call[domain.Post](ctx, c, http.MethodGet, "/posts/"+url.PathEscape(id), nil, nil)
}

func (c *Client) CreateComment(ctx context.Context, req domain.CreateCommentRequest) (domain.Comment, error) {
	return call[domain.Comment](ctx, c, http.MethodPost, "/posts/"+url.PathEscape(req.PostID)+"/comments", nil, req)
}

func (c *Client) UpdateComment(ctx context.Context, req domain.UpdateCommentRequest) (domain.UpdateCommentResponse, error) {
	return call[domain.UpdateCommentResponse](ctx, c, http.MethodPut, commentPath(req.PostID, req.ID), nil, req)
}

func (c *Client) DeleteComment(ctx context.Context, req domain.DeleteCommentRequest) (domain.DeleteCommentResponse, error) {
	return call[domain.DeleteCommentResponse](ctx, c, http.MethodDelete, commentPath(req.PostID, req.ID), nil, nil)
}

func (c *Client) ToggleCommentLike(ctx context.Context, req domain.ToggleLikeRequest) (domain.ToggleLikeResponse, error) {
	return call[domain.ToggleLikeResponse](ctx, c, http.MethodPost, commentPath(req.PostID, req.ID)+"/toggleLike", nil, nil)
}
