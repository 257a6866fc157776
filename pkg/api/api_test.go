package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rtemka/blog/domain"
	"github.com/rtemka/blog/pkg/memdb"
	"github.com/rtemka/blog/pkg/session"
	"go.uber.org/zap"
)

const origin = "http://localhost:3000"

type testEnv struct {
	ts  *httptest.Server
	db  *memdb.MemDB
	api *API
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sm, err := session.New("api-test-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("session.New() = err %v", err)
	}

	db := memdb.New()
	ctx := context.Background()
	if err := db.CreatePost(ctx, domain.Post{ID: "p1", Title: "Post 1", Body: "body", CreatedAt: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := db.CreatePost(ctx, domain.Post{ID: "p2", Title: "Post 2", CreatedAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatal(err)
	}

	api := New(db, zap.NewNop(), Options{Sessions: sm, AllowedOrigins: []string{origin}})
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, db: db, api: api}
}

// do выполняет запрос и декодирует JSON-ответ в out, если out != nil.
func (e *testEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie, out any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal() = err %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, rd)
	if err != nil {
		t.Fatalf("http.NewRequest() = err %v", err)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("API() = err %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("API() decode = err %v", err)
		}
	}
	return resp
}

// signIn входит под именем name и возвращает cookie сессии.
func (e *testEnv) signIn(t *testing.T, name string) (*http.Cookie, domain.User) {
	t.Helper()
	var u domain.User
	resp := e.do(t, http.MethodPost, "/session", map[string]string{"name": name}, nil, &u)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signIn() = response code %d, want %d", resp.StatusCode, http.StatusOK)
	}
	for _, c := range resp.Cookies() {
		if c.Name == session.CookieName {
			return c, u
		}
	}
	t.Fatalf("signIn() = no session cookie")
	return nil, u
}

func wantCode(t *testing.T, resp *http.Response, code int) {
	t.Helper()
	if resp.StatusCode != code {
		t.Errorf("API() = response code %d, want %d", resp.StatusCode, code)
	}
}

func wantError(t *testing.T, got map[string]string, msg string) {
	t.Helper()
	if got["error"] != msg {
		t.Errorf("API() = error %q, want %q", got["error"], msg)
	}
}

func TestAPI_Posts(t *testing.T) {
	e := newTestEnv(t)

	var p struct {
		Pagination
		PageData []domain.PostSummary `json:"page"`
	}
	resp := e.do(t, http.MethodGet, "/posts", nil, nil, &p)
	wantCode(t, resp, http.StatusOK)
	if p.TotalPages != 1 || p.CurrentPage != 1 || p.PageSize != domain.PageSize {
		t.Errorf("API() = pagination %+v", p.Pagination)
	}
	if len(p.PageData) != 2 || p.PageData[0].ID != "p1" {
		t.Errorf("API() = posts %v, want p1 first", p.PageData)
	}

	var errBody map[string]string
	resp = e.do(t, http.MethodGet, "/posts?page=abc", nil, nil, &errBody)
	wantCode(t, resp, http.StatusBadRequest)
}

func TestAPI_Session(t *testing.T) {
	e := newTestEnv(t)

	var errBody map[string]string
	resp := e.do(t, http.MethodGet, "/session", nil, nil, &errBody)
	wantCode(t, resp, http.StatusUnauthorized)

	cookie, u := e.signIn(t, "Kyle")
	if u.Name != "Kyle" || u.ID == "" {
		t.Fatalf("signIn() = user %v", u)
	}

	var me domain.User
	resp = e.do(t, http.MethodGet, "/session", nil, cookie, &me)
	wantCode(t, resp, http.StatusOK)
	if me != u {
		t.Errorf("API() = user %v, want %v", me, u)
	}

	// повторный вход возвращает того же пользователя
	_, again := e.signIn(t, "Kyle")
	if again.ID != u.ID {
		t.Errorf("signIn() = id %q, want %q", again.ID, u.ID)
	}

	resp = e.do(t, http.MethodDelete, "/session", nil, cookie, nil)
	wantCode(t, resp, http.StatusNoContent)

	resp = e.do(t, http.MethodPost, "/session", map[string]string{"name": "  "}, nil, &errBody)
	wantCode(t, resp, http.StatusBadRequest)
	wantError(t, errBody, "Name is required")
}

func TestAPI_CommentFlow(t *testing.T) {
	e := newTestEnv(t)
	kyle, _ := e.signIn(t, "Kyle")
	sally, _ := e.signIn(t, "Sally")

	t.Run("create_requires_session", func(t *testing.T) {
		var errBody map[string]string
		resp := e.do(t, http.MethodPost, "/posts/p1/comments", map[string]string{"message": "hi"}, nil, &errBody)
		wantCode(t, resp, http.StatusUnauthorized)
	})

	t.Run("create_requires_message", func(t *testing.T) {
		var errBody map[string]string
		resp := e.do(t, http.MethodPost, "/posts/p1/comments", map[string]string{"message": ""}, kyle, &errBody)
		wantCode(t, resp, http.StatusBadRequest)
		wantError(t, errBody, "Message is required")

		resp = e.do(t, http.MethodPost, "/posts/p1/comments", map[string]any{}, kyle, &errBody)
		wantCode(t, resp, http.StatusBadRequest)
		wantError(t, errBody, "Message is required")
	})

	var root domain.Comment
	resp := e.do(t, http.MethodPost, "/posts/p1/comments", map[string]string{"message": "<b>first</b>"}, kyle, &root)
	wantCode(t, resp, http.StatusCreated)
	if root.ID == "" || root.Message != "first" || root.ParentID != nil || root.User.Name != "Kyle" {
		t.Fatalf("API() = comment %+v", root)
	}
	if root.LikeCount != 0 || root.LikedByMe {
		t.Errorf("API() = new comment likes %d/%t, want 0/false", root.LikeCount, root.LikedByMe)
	}

	var reply domain.Comment
	resp = e.do(t, http.MethodPost, "/posts/p1/comments",
		map[string]string{"message": "second", "parentId": root.ID}, sally, &reply)
	wantCode(t, resp, http.StatusCreated)
	if reply.Parent() != root.ID {
		t.Errorf("API() = parent %q, want %q", reply.Parent(), root.ID)
	}

	t.Run("parent_from_other_post", func(t *testing.T) {
		var errBody map[string]string
		resp := e.do(t, http.MethodPost, "/posts/p2/comments",
			map[string]string{"message": "x", "parentId": root.ID}, sally, &errBody)
		wantCode(t, resp, http.StatusBadRequest)
	})

	t.Run("unknown_post", func(t *testing.T) {
		var errBody map[string]string
		resp := e.do(t, http.MethodPost, "/posts/nope/comments", map[string]string{"message": "x"}, sally, &errBody)
		wantCode(t, resp, http.StatusNotFound)
	})

	t.Run("edit_by_other_user", func(t *testing.T) {
		var errBody map[string]string
		resp := e.do(t, http.MethodPut, "/posts/p1/comments/"+root.ID, map[string]string{"message": "hack"}, sally, &errBody)
		wantCode(t, resp, http.StatusForbidden)
		wantError(t, errBody, "You do not have permission to edit this message")
	})

	t.Run("delete_by_other_user", func(t *testing.T) {
		var errBody map[string]string
		resp := e.do(t, http.MethodDelete, "/posts/p1/comments/"+root.ID, nil, sally, &errBody)
		wantCode(t, resp, http.StatusForbidden)
		wantError(t, errBody, "You do not have permission to delete this message")
	})

	t.Run("wrong_post_in_path", func(t *testing.T) {
		var errBody map[string]string
		resp := e.do(t, http.MethodPut, "/posts/p2/comments/"+root.ID, map[string]string{"message": "x"}, kyle, &errBody)
		wantCode(t, resp, http.StatusNotFound)
	})

	t.Run("edit", func(t *testing.T) {
		var got domain.UpdateCommentResponse
		resp := e.do(t, http.MethodPut, "/posts/p1/comments/"+root.ID, map[string]string{"message": "edited"}, kyle, &got)
		wantCode(t, resp, http.StatusOK)
		if got.Message != "edited" {
			t.Errorf("API() = message %q, want %q", got.Message, "edited")
		}

		var errBody map[string]string
		resp = e.do(t, http.MethodPut, "/posts/p1/comments/"+root.ID, map[string]string{"message": ""}, kyle, &errBody)
		wantCode(t, resp, http.StatusBadRequest)
		wantError(t, errBody, "Message is required")
	})

	t.Run("toggle_like", func(t *testing.T) {
		for _, want := range []bool{true, false, true} {
			var got domain.ToggleLikeResponse
			resp := e.do(t, http.MethodPost, "/posts/p1/comments/"+root.ID+"/toggleLike", nil, sally, &got)
			wantCode(t, resp, http.StatusOK)
			if got.AddLike != want {
				t.Errorf("API() = addLike %t, want %t", got.AddLike, want)
			}
		}
	})

	t.Run("post_detail", func(t *testing.T) {
		var p domain.Post
		resp := e.do(t, http.MethodGet, "/posts/p1", nil, sally, &p)
		wantCode(t, resp, http.StatusOK)
		if len(p.Comments) != 2 {
			t.Fatalf("API() = %d comments, want 2", len(p.Comments))
		}
		if p.Comments[0].ID != reply.ID {
			t.Errorf("API() = first comment %q, want newest %q", p.Comments[0].ID, reply.ID)
		}
		got := p.Comments[1]
		if got.Message != "edited" || got.LikeCount != 1 || !got.LikedByMe {
			t.Errorf("API() = root %+v", got)
		}

		resp = e.do(t, http.MethodGet, "/posts/p1", nil, nil, &p)
		wantCode(t, resp, http.StatusOK)
		if p.Comments[1].LikedByMe {
			t.Errorf("API() = likedByMe for anonymous viewer")
		}
	})

	t.Run("delete", func(t *testing.T) {
		var got domain.DeleteCommentResponse
		resp := e.do(t, http.MethodDelete, "/posts/p1/comments/"+root.ID, nil, kyle, &got)
		wantCode(t, resp, http.StatusOK)
		if got.ID != root.ID {
			t.Errorf("API() = id %q, want %q", got.ID, root.ID)
		}

		var errBody map[string]string
		resp = e.do(t, http.MethodDelete, "/posts/p1/comments/"+reply.ID, nil, sally, &errBody)
		wantCode(t, resp, http.StatusNotFound)
	})
}

func TestAPI_Headers(t *testing.T) {
	e := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodOptions, e.ts.URL+"/posts/p1/comments", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("API() = err %v", err)
	}
	resp.Body.Close()
	wantCode(t, resp, http.StatusNoContent)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != origin {
		t.Errorf("API() = allow origin %q, want %q", got, origin)
	}
	if got := resp.Header.Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("API() = allow credentials %q, want %q", got, "true")
	}

	req, _ = http.NewRequest(http.MethodGet, e.ts.URL+"/posts", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set(requestIDHeader, "rid-1")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("API() = err %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("API() = allow origin %q for foreign origin", got)
	}
	if got := resp.Header.Get(requestIDHeader); got != "rid-1" {
		t.Errorf("API() = request id %q, want %q", got, "rid-1")
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("API() = X-Frame-Options %q, want DENY", got)
	}
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	var health map[string]string
	resp := e.do(t, http.MethodGet, "/healthz", nil, nil, &health)
	wantCode(t, resp, http.StatusOK)
	if health["status"] != "ok" {
		t.Errorf("API() = health %v", health)
	}

	e.do(t, http.MethodGet, "/posts", nil, nil, nil)

	resp, err := http.Get(e.ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("API() = err %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `blog_http_requests_total{code="200",method="GET",route="/posts"}`) {
		t.Errorf("API() = metrics do not contain request counter:\n%s", b)
	}
}

func Test_statusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.Validation("x"), http.StatusBadRequest},
		{domain.Auth("x"), http.StatusUnauthorized},
		{domain.Permission("x"), http.StatusForbidden},
		{domain.NotFound("x"), http.StatusNotFound},
		{domain.Transport(io.EOF), http.StatusBadGateway},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestAPI_WriteJSONError_MasksInternal(t *testing.T) {
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	e.api.Fail(rec, domain.Internal(io.ErrUnexpectedEOF))

	var got map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Fail() = code %d", rec.Code)
	}
	wantError(t, got, "internal server error")
}

// racingRepo создает пользователя с тем же именем прямо перед
// CreateUser, как это сделал бы параллельный вход.
type racingRepo struct {
	*memdb.MemDB
}

func (r racingRepo) CreateUser(ctx context.Context, u domain.User) error {
	if err := r.MemDB.CreateUser(ctx, domain.User{ID: "winner", Name: u.Name}); err != nil {
		return err
	}
	return domain.Internal(errors.New("UNIQUE constraint failed: users.name"))
}

func TestAPI_SignInConcurrentCreate(t *testing.T) {
	sm, err := session.New("api-test-secret-0123456789", time.Hour)
	if err != nil {
		t.Fatalf("session.New() = err %v", err)
	}
	ts := httptest.NewServer(New(racingRepo{memdb.New()}, zap.NewNop(), Options{Sessions: sm}))
	defer ts.Close()
	e := &testEnv{ts: ts}

	_, u := e.signIn(t, "Kyle")
	if u.ID != "winner" || u.Name != "Kyle" {
		t.Errorf("signIn() = user %v, want id %q", u, "winner")
	}
}
