package memdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rtemka/blog/domain"
	"github.com/stretchr/testify/require"
)

var (
	kyle  = domain.User{ID: "u1", Name: "Kyle"}
	sally = domain.User{ID: "u2", Name: "Sally"}
	t0    = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
)

func ptr(s string) *string { return &s }

func fixture(t *testing.T) *MemDB {
	t.Helper()
	ctx := context.Background()
	db := New()
	require.NoError(t, db.CreateUser(ctx, kyle))
	require.NoError(t, db.CreateUser(ctx, sally))
	require.NoError(t, db.CreatePost(ctx, domain.Post{ID: "p1", Title: "Post 1", Body: "body", CreatedAt: t0}))
	require.NoError(t, db.CreatePost(ctx, domain.Post{ID: "p2", Title: "Post 2", CreatedAt: t0.Add(time.Hour)}))

	require.NoError(t, db.CreateComment(ctx, "p1", domain.Comment{ID: "c1", Message: "root", User: kyle, CreatedAt: t0}))
	require.NoError(t, db.CreateComment(ctx, "p1", domain.Comment{ID: "c2", Message: "reply", ParentID: ptr("c1"), User: sally, CreatedAt: t0.Add(time.Minute)}))
	require.NoError(t, db.CreateComment(ctx, "p1", domain.Comment{ID: "c3", Message: "reply to reply", ParentID: ptr("c2"), User: kyle, CreatedAt: t0.Add(2 * time.Minute)}))
	return db
}

func TestMemDB_Posts(t *testing.T) {
	ctx := context.Background()
	db := fixture(t)

	got, err := db.Posts(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, []domain.PostSummary{{ID: "p2", Title: "Post 2"}, {ID: "p1", Title: "Post 1"}}, got)

	for i := 0; i < domain.PageSize; i++ {
		require.NoError(t, db.CreatePost(ctx, domain.Post{ID: fmt.Sprintf("x%d", i), CreatedAt: t0.Add(-time.Duration(i+1) * time.Hour)}))
	}
	n, err := db.CountPosts(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.PageSize+2, n)

	page2, err := db.Posts(ctx, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)

	page3, err := db.Posts(ctx, 3)
	require.NoError(t, err)
	require.Empty(t, page3)
}

func TestMemDB_Post(t *testing.T) {
	ctx := context.Background()
	db := fixture(t)

	_, err := db.ToggleLike(ctx, sally.ID, "c1")
	require.NoError(t, err)

	p, err := db.Post(ctx, "p1", sally.ID)
	require.NoError(t, err)
	require.Equal(t, "body", p.Body)
	require.Len(t, p.Comments, 3)
	require.Equal(t, "c3", p.Comments[0].ID, "newest first")
	require.Equal(t, "c1", p.Comments[2].ID)
	require.Equal(t, 1, p.Comments[2].LikeCount)
	require.True(t, p.Comments[2].LikedByMe)
	require.Equal(t, kyle, p.Comments[2].User)

	p, err = db.Post(ctx, "p1", kyle.ID)
	require.NoError(t, err)
	require.False(t, p.Comments[2].LikedByMe)

	_, err = db.Post(ctx, "nope", "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemDB_CreateComment(t *testing.T) {
	ctx := context.Background()
	db := fixture(t)

	err := db.CreateComment(ctx, "p2", domain.Comment{ID: "c9", Message: "x", ParentID: ptr("c1"), User: kyle})
	require.ErrorIs(t, err, domain.ErrValidation, "parent from another post")

	err = db.CreateComment(ctx, "nope", domain.Comment{ID: "c9", Message: "x", User: kyle})
	require.ErrorIs(t, err, domain.ErrNotFound)

	err = db.CreateComment(ctx, "p1", domain.Comment{ID: "c1", Message: "x", User: kyle})
	require.ErrorIs(t, err, domain.ErrInternal)

	ref, err := db.Comment(ctx, "c2")
	require.NoError(t, err)
	require.Equal(t, domain.CommentRef{ID: "c2", PostID: "p1", UserID: sally.ID}, ref)
}

func TestMemDB_UpdateComment(t *testing.T) {
	ctx := context.Background()
	db := fixture(t)

	msg, err := db.UpdateComment(ctx, "c1", "edited")
	require.NoError(t, err)
	require.Equal(t, "edited", msg)

	_, err = db.UpdateComment(ctx, "nope", "x")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemDB_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	db := fixture(t)
	_, err := db.ToggleLike(ctx, kyle.ID, "c3")
	require.NoError(t, err)

	id, err := db.DeleteComment(ctx, "c2")
	require.NoError(t, err)
	require.Equal(t, "c2", id)

	p, err := db.Post(ctx, "p1", kyle.ID)
	require.NoError(t, err)
	require.Len(t, p.Comments, 1)
	require.Equal(t, "c1", p.Comments[0].ID)
	require.Empty(t, db.likes)

	_, err = db.DeleteComment(ctx, "c2")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemDB_ToggleLike(t *testing.T) {
	ctx := context.Background()
	db := fixture(t)

	added, err := db.ToggleLike(ctx, kyle.ID, "c2")
	require.NoError(t, err)
	require.True(t, added)

	added, err = db.ToggleLike(ctx, kyle.ID, "c2")
	require.NoError(t, err)
	require.False(t, added)

	_, err = db.ToggleLike(ctx, kyle.ID, "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemDB_Users(t *testing.T) {
	ctx := context.Background()
	db := fixture(t)

	u, err := db.UserByName(ctx, "Sally")
	require.NoError(t, err)
	require.Equal(t, sally, u)

	u, err = db.User(ctx, kyle.ID)
	require.NoError(t, err)
	require.Equal(t, kyle, u)

	_, err = db.UserByName(ctx, "Nobody")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.Error(t, db.CreateUser(ctx, domain.User{ID: "u9", Name: "Kyle"}))
}
