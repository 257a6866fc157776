package domain

import (
	"context"
	"time"
)

// PageSize - количество постов на одной странице выдачи.
const PageSize = 10

// User - автор комментариев.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Comment - модель данных комментария к посту.
// ParentID == nil у корневого комментария.
type Comment struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	ParentID  *string   `json:"parentId"`
	CreatedAt time.Time `json:"createdAt"`
	User      User      `json:"user"`
	LikeCount int       `json:"likeCount"`
	LikedByMe bool      `json:"likedByMe"`
}

// Parent возвращает id родителя или пустую строку для корневого комментария.
func (c Comment) Parent() string {
	if c.ParentID == nil {
		return ""
	}
	return *c.ParentID
}

// CommentRef - служебные сведения о комментарии,
// нужные для проверок владельца и принадлежности посту.
type CommentRef struct {
	ID     string
	PostID string
	UserID string
}

// PostSummary - пост в компактном виде (для списка).
type PostSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Post - модель данных поста вместе с комментариями.
// Комментарии отсортированы от новых к старым.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	Comments  []Comment `json:"comments"`
}

// Запросы и ответы внешних операций над комментариями.
type (
	CreateCommentRequest struct {
		PostID   string  `json:"-"`
		Message  string  `json:"message"`
		ParentID *string `json:"parentId,omitempty"`
	}

	UpdateCommentRequest struct {
		PostID  string `json:"-"`
		ID      string `json:"-"`
		Message string `json:"message"`
	}

	DeleteCommentRequest struct {
		PostID string
		ID     string
	}

	ToggleLikeRequest struct {
		PostID string
		ID     string
	}

	UpdateCommentResponse struct {
		Message string `json:"message"`
	}

	DeleteCommentResponse struct {
		ID string `json:"id"`
	}

	ToggleLikeResponse struct {
		AddLike bool `json:"addLike"`
	}
)

// Repository - контракт на работу с БД.
type Repository interface {
	Posts(ctx context.Context, page int) ([]PostSummary, error)       // посты списком, page < 1 - все
	CountPosts(ctx context.Context) (int, error)                      // общее количество постов (для пагинации)
	Post(ctx context.Context, id, viewerID string) (Post, error)      // пост с комментариями и лайками viewerID
	CreatePost(ctx context.Context, p Post) error                     // создать пост
	CreateUser(ctx context.Context, u User) error                     // создать пользователя
	User(ctx context.Context, id string) (User, error)                // пользователь по id
	UserByName(ctx context.Context, name string) (User, error)        // пользователь по имени
	Comment(ctx context.Context, id string) (CommentRef, error)       // сведения о комментарии
	CreateComment(ctx context.Context, postID string, c Comment) error // создать комментарий
	UpdateComment(ctx context.Context, id, message string) (string, error)
	DeleteComment(ctx context.Context, id string) (string, error)
	ToggleLike(ctx context.Context, userID, commentID string) (bool, error) // true - лайк поставлен
	Close() error                                                     // закрыть соединение с БД.
}
