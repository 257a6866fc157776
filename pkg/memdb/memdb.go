// пакет memdb - хранилище блога в памяти.
// Используется в тестах и для запуска сервера без БД (DB_URL=mem://).
package memdb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rtemka/blog/domain"
)

type comment struct {
	domain.Comment
	postID string
	seq    int // порядок вставки, для одинаковых CreatedAt
}

type like struct {
	userID, commentID string
}

// MemDB реализует [domain.Repository] поверх map.
type MemDB struct {
	mu       sync.RWMutex
	users    map[string]domain.User
	posts    map[string]domain.Post
	comments map[string]*comment
	likes    map[like]struct{}
	seq      int
}

func New() *MemDB {
	return &MemDB{
		users:    make(map[string]domain.User),
		posts:    make(map[string]domain.Post),
		comments: make(map[string]*comment),
		likes:    make(map[like]struct{}),
	}
}

// Posts возвращает посты от новых к старым.
func (db *MemDB) Posts(_ context.Context, page int) ([]domain.PostSummary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	all := make([]domain.Post, 0, len(db.posts))
	for _, p := range db.posts {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if page >= 1 {
		from := (page - 1) * domain.PageSize
		if from >= len(all) {
			return []domain.PostSummary{}, nil
		}
		all = all[from:min(from+domain.PageSize, len(all))]
	}

	out := make([]domain.PostSummary, 0, len(all))
	for _, p := range all {
		out = append(out, domain.PostSummary{ID: p.ID, Title: p.Title})
	}
	return out, nil
}

func (db *MemDB) CountPosts(_ context.Context) (int, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.posts), nil
}

// Post возвращает пост с комментариями от новых к старым.
// LikedByMe вычисляется для viewerID.
func (db *MemDB) Post(_ context.Context, id, viewerID string) (domain.Post, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	p, ok := db.posts[id]
	if !ok {
		return domain.Post{}, domain.NotFound("Post not found")
	}

	var cs []*comment
	for _, c := range db.comments {
		if c.postID == id {
			cs = append(cs, c)
		}
	}
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].CreatedAt.Equal(cs[j].CreatedAt) {
			return cs[i].seq > cs[j].seq
		}
		return cs[i].CreatedAt.After(cs[j].CreatedAt)
	})

	p.Comments = make([]domain.Comment, 0, len(cs))
	for _, c := range cs {
		out := c.Comment
		out.User = db.users[c.User.ID]
		out.LikeCount = db.countLikes(c.ID)
		_, out.LikedByMe = db.likes[like{viewerID, c.ID}]
		p.Comments = append(p.Comments, out)
	}
	return p, nil
}

func (db *MemDB) countLikes(commentID string) int {
	n := 0
	for l := range db.likes {
		if l.commentID == commentID {
			n++
		}
	}
	return n
}

func (db *MemDB) CreatePost(_ context.Context, p domain.Post) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.posts[p.ID]; ok {
		return domain.Internal(fmt.Errorf("memdb: post %q already exists", p.ID))
	}
	p.Comments = nil
	db.posts[p.ID] = p
	return nil
}

func (db *MemDB) CreateUser(_ context.Context, u domain.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.users[u.ID]; ok {
		return domain.Internal(fmt.Errorf("memdb: user %q already exists", u.ID))
	}
	for _, other := range db.users {
		if other.Name == u.Name {
			return domain.Internal(fmt.Errorf("memdb: user name %q already taken", u.Name))
		}
	}
	db.users[u.ID] = u
	return nil
}

func (db *MemDB) User(_ context.Context, id string) (domain.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	u, ok := db.users[id]
	if !ok {
		return domain.User{}, domain.NotFound("User not found")
	}
	return u, nil
}

func (db *MemDB) UserByName(_ context.Context, name string) (domain.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, u := range db.users {
		if u.Name == name {
			return u, nil
		}
	}
	return domain.User{}, domain.NotFound("User not found")
}

func (db *MemDB) Comment(_ context.Context, id string) (domain.CommentRef, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	c, ok := db.comments[id]
	if !ok {
		return domain.CommentRef{}, domain.NotFound("Comment not found")
	}
	return domain.CommentRef{ID: c.ID, PostID: c.postID, UserID: c.User.ID}, nil
}

func (db *MemDB) CreateComment(_ context.Context, postID string, c domain.Comment) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.posts[postID]; !ok {
		return domain.NotFound("Post not found")
	}
	if _, ok := db.users[c.User.ID]; !ok {
		return domain.NotFound("User not found")
	}
	if _, ok := db.comments[c.ID]; ok {
		return domain.Internal(fmt.Errorf("memdb: comment %q already exists", c.ID))
	}
	if p := c.Parent(); p != "" {
		parent, ok := db.comments[p]
		if !ok || parent.postID != postID {
			return domain.Validation("Parent comment not found in this post")
		}
	}

	db.seq++
	c.LikeCount, c.LikedByMe = 0, false
	db.comments[c.ID] = &comment{Comment: c, postID: postID, seq: db.seq}
	return nil
}

func (db *MemDB) UpdateComment(_ context.Context, id, message string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.comments[id]
	if !ok {
		return "", domain.NotFound("Comment not found")
	}
	c.Message = message
	return c.Message, nil
}

// DeleteComment удаляет комментарий вместе со всеми ответами на него.
func (db *MemDB) DeleteComment(_ context.Context, id string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.comments[id]; !ok {
		return "", domain.NotFound("Comment not found")
	}

	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		delete(db.comments, cur)
		for l := range db.likes {
			if l.commentID == cur {
				delete(db.likes, l)
			}
		}
		for cid, c := range db.comments {
			if c.Parent() == cur {
				queue = append(queue, cid)
			}
		}
	}
	return id, nil
}

func (db *MemDB) ToggleLike(_ context.Context, userID, commentID string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.comments[commentID]; !ok {
		return false, domain.NotFound("Comment not found")
	}
	if _, ok := db.users[userID]; !ok {
		return false, domain.NotFound("User not found")
	}

	k := like{userID, commentID}
	if _, ok := db.likes[k]; ok {
		delete(db.likes, k)
		return false, nil
	}
	db.likes[k] = struct{}{}
	return true, nil
}

// Close - no-op
func (db *MemDB) Close() error {
	return nil
}
