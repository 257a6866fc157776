package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rtemka/blog/domain"
)

const pageQP = "page"

// Pagination - страница выдачи списка.
type Pagination struct {
	TotalPages  int `json:"total_pages"`
	PageSize    int `json:"page_size"`
	CurrentPage int `json:"page_number"`
	PageData    any `json:"page"`
}

func totalPages(total, size int) int {
	return (total + size - 1) / size
}

func (api *API) handlePosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := 1
		if qp := r.URL.Query().Get(pageQP); qp != "" {
			var err error
			page, err = strconv.Atoi(qp)
			if err != nil || page < 1 {
				api.Fail(w, domain.Validation(fmt.Sprintf("bad %q parameter: must be: page=NUM", pageQP)))
				return
			}
		}

		ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
		defer cancel()

		total, err := api.repo.CountPosts(ctx)
		if err != nil {
			api.Fail(w, err)
			return
		}
		posts, err := api.repo.Posts(ctx, page)
		if err != nil {
			api.Fail(w, err)
			return
		}

		api.WriteJSON(w, Pagination{
			TotalPages:  totalPages(total, domain.PageSize),
			PageSize:    domain.PageSize,
			CurrentPage: page,
			PageData:    posts,
		}, http.StatusOK)
	}
}

// handlePost возвращает пост с комментариями. Сессия необязательна:
// без нее likedByMe у всех комментариев false.
func (api *API) handlePost() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer, _ := api.sessions.UserID(r)

		ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
		defer cancel()

		post, err := api.repo.Post(ctx, mux.Vars(r)["id"], viewer)
		if err != nil {
			api.Fail(w, err)
			return
		}
		api.WriteJSON(w, post, http.StatusOK)
	}
}

// author возвращает пользователя сессии.
func (api *API) author(ctx context.Context, r *http.Request) (domain.User, error) {
	id, err := api.userID(r)
	if err != nil {
		return domain.User{}, err
	}
	u, err := api.repo.User(ctx, id)
	if domain.KindOf(err) == domain.KindNotFound {
		return domain.User{}, domain.Auth("You are not signed in")
	}
	return u, err
}

func (api *API) handleCommentCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
		defer cancel()

		user, err := api.author(ctx, r)
		if err != nil {
			api.Fail(w, err)
			return
		}

		var req domain.CreateCommentRequest
		if err := decode(r, &req); err != nil {
			api.Fail(w, err)
			return
		}
		msg, err := api.checker.Check(req.Message)
		if err != nil {
			api.Fail(w, err)
			return
		}
		if req.ParentID != nil && *req.ParentID == "" {
			req.ParentID = nil
		}

		c := domain.Comment{
			ID:        uuid.NewString(),
			Message:   msg,
			ParentID:  req.ParentID,
			CreatedAt: api.now().UTC(),
			User:      user,
		}
		if err := api.repo.CreateComment(ctx, mux.Vars(r)["id"], c); err != nil {
			api.Fail(w, err)
			return
		}

		api.WriteJSON(w, c, http.StatusCreated)
	}
}

// own проверяет, что комментарий относится к посту из пути
// и принадлежит пользователю. action попадает в текст ошибки.
func (api *API) own(ctx context.Context, r *http.Request, action string) (domain.CommentRef, error) {
	userID, err := api.userID(r)
	if err != nil {
		return domain.CommentRef{}, err
	}

	vars := mux.Vars(r)
	ref, err := api.repo.Comment(ctx, vars["commentId"])
	if err != nil {
		return domain.CommentRef{}, err
	}
	if ref.PostID != vars["postId"] {
		return domain.CommentRef{}, domain.NotFound("Comment not found")
	}
	if ref.UserID != userID {
		return domain.CommentRef{}, domain.Permission("You do not have permission to " + action + " this message")
	}
	return ref, nil
}

func (api *API) handleCommentUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
		defer cancel()

		if _, err := api.userID(r); err != nil {
			api.Fail(w, err)
			return
		}

		var req domain.UpdateCommentRequest
		if err := decode(r, &req); err != nil {
			api.Fail(w, err)
			return
		}
		msg, err := api.checker.Check(req.Message)
		if err != nil {
			api.Fail(w, err)
			return
		}

		ref, err := api.own(ctx, r, "edit")
		if err != nil {
			api.Fail(w, err)
			return
		}

		msg, err = api.repo.UpdateComment(ctx, ref.ID, msg)
		if err != nil {
			api.Fail(w, err)
			return
		}
		api.WriteJSON(w, domain.UpdateCommentResponse{Message: msg}, http.StatusOK)
	}
}

func (api *API) handleCommentDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
		defer cancel()

		ref, err := api.own(ctx, r, "delete")
		if err != nil {
			api.Fail(w, err)
			return
		}

		id, err := api.repo.DeleteComment(ctx, ref.ID)
		if err != nil {
			api.Fail(w, err)
			return
		}
		api.WriteJSON(w, domain.DeleteCommentResponse{ID: id}, http.StatusOK)
	}
}

func (api *API) handleToggleLike() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
		defer cancel()

		user, err := api.author(ctx, r)
		if err != nil {
			api.Fail(w, err)
			return
		}

		vars := mux.Vars(r)
		ref, err := api.repo.Comment(ctx, vars["commentId"])
		if err != nil {
			api.Fail(w, err)
			return
		}
		if ref.PostID != vars["postId"] {
			api.Fail(w, domain.NotFound("Comment not found"))
			return
		}

		added, err := api.repo.ToggleLike(ctx, user.ID, ref.ID)
		if err != nil {
			api.Fail(w, err)
			return
		}
		api.WriteJSON(w, domain.ToggleLikeResponse{AddLike: added}, http.StatusOK)
	}
}

type signInRequest struct {
	Name string `json:"name"`
}

// handleSignIn - вход для разработки: по имени, без пароля.
// Если пользователя с таким именем нет, он создается.
func (api *API) handleSignIn() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := decode(r, &req); err != nil {
			api.Fail(w, err)
			return
		}
		name := strings.TrimSpace(req.Name)
		if name == "" {
			api.Fail(w, domain.Validation("Name is required"))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
		defer cancel()

		u, err := api.repo.UserByName(ctx, name)
		if domain.KindOf(err) == domain.KindNotFound {
			u = domain.User{ID: uuid.NewString(), Name: name}
			if err = api.repo.CreateUser(ctx, u); err != nil {
				// пользователя мог создать параллельный вход с тем же именем
				if existing, lookupErr := api.repo.UserByName(ctx, name); lookupErr == nil {
					u, err = existing, nil
				}
			}
		}
		if err != nil {
			api.Fail(w, err)
			return
		}

		if err := api.sessions.Issue(w, u.ID); err != nil {
			api.Fail(w, domain.Internal(err))
			return
		}
		api.WriteJSON(w, u, http.StatusOK)
	}
}

func (api *API) handleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
		defer cancel()

		u, err := api.author(ctx, r)
		if err != nil {
			api.Fail(w, err)
			return
		}
		api.WriteJSON(w, u, http.StatusOK)
	}
}

func (api *API) handleSignOut() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api.sessions.Clear(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (api *API) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), api.timeout)
		defer cancel()

		if _, err := api.repo.CountPosts(ctx); err != nil {
			api.Fail(w, err)
			return
		}
		api.WriteJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
	}
}
