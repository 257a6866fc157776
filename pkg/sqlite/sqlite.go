// пакет sqlite - хранилище блога в SQLite.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rtemka/blog/domain"
)

//go:embed schema.sql
var schema string

// SQLite выполняет операции CRUD в БД.
type SQLite struct {
	// это поле экпортируемое, чтобы пользователь
	// мог установить такие важные параметры подлючения как
	// SetConnMaxIdleTime, SetMaxOpenConns, SetMaxIdleConns...
	DB *sql.DB
}

// New производит подключение к [*SQLite] БД.
// Внешние ключи включаются всегда, транзакции начинаются как IMMEDIATE.
func New(connstr string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn(connstr))
	if err != nil {
		return nil, err
	}

	return &SQLite{DB: db}, db.Ping()
}

// dsn дописывает в connstr обязательные параметры драйвера,
// если пользователь их не задал.
func dsn(connstr string) string {
	params := []struct{ key, value string }{
		{"_fk", "on"},
		{"_txlock", "immediate"},
	}

	var query string
	if i := strings.IndexByte(connstr, '?'); i >= 0 {
		query = connstr[i+1:]
	}
	for _, p := range params {
		if hasParam(query, p.key) || (p.key == "_fk" && hasParam(query, "_foreign_keys")) {
			continue
		}
		sep := "&"
		if !strings.Contains(connstr, "?") {
			sep = "?"
		}
		connstr += sep + p.key + "=" + p.value
	}
	return connstr
}

func hasParam(query, key string) bool {
	for _, kv := range strings.Split(query, "&") {
		if k, _, _ := strings.Cut(kv, "="); k == key {
			return true
		}
	}
	return false
}

// Close закрывает соединение с БД.
func (l *SQLite) Close() error {
	return l.DB.Close()
}

// Migrate создает таблицы, если их еще нет.
func (l *SQLite) Migrate(ctx context.Context) error {
	return l.exec(ctx, schema)
}

// RunFile читает и исполняет sql-файл.
func (l *SQLite) RunFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return l.exec(context.Background(), string(b))
}

// exec вспомогательная функция, выполняет
// *tx.Exec() в транзакции.
func (l *SQLite) exec(ctx context.Context, stmt string, args ...any) error {
	tx, err := l.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, stmt, args...); err != nil {
		return err
	}

	return tx.Commit()
}

// notFound переводит sql.ErrNoRows в ошибку domain.
func notFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NotFound(msg)
	}
	return domain.Internal(err)
}

func stamp(t time.Time) int64 { return t.UnixNano() }

func unstamp(n int64) time.Time { return time.Unix(0, n).UTC() }

// Posts возвращает посты от новых к старым. page < 1 - все посты.
func (l *SQLite) Posts(ctx context.Context, page int) ([]domain.PostSummary, error) {
	stmt := `SELECT id, title FROM posts ORDER BY created_at DESC, id`
	var args []any
	if page >= 1 {
		stmt += ` LIMIT $1 OFFSET $2`
		args = append(args, domain.PageSize, (page-1)*domain.PageSize)
	}

	rows, err := l.DB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, domain.Internal(err)
	}
	defer rows.Close()

	posts := []domain.PostSummary{}
	for rows.Next() {
		var p domain.PostSummary
		if err := rows.Scan(&p.ID, &p.Title); err != nil {
			return nil, domain.Internal(err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err)
	}
	return posts, nil
}

func (l *SQLite) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := l.DB.QueryRowContext(ctx, `SELECT count(*) FROM posts`).Scan(&n); err != nil {
		return 0, domain.Internal(err)
	}
	return n, nil
}

// Post возвращает пост с комментариями от новых к старым.
func (l *SQLite) Post(ctx context.Context, id, viewerID string) (domain.Post, error) {
	var (
		p  domain.Post
		ts int64
	)
	err := l.DB.QueryRowContext(ctx,
		`SELECT id, title, body, created_at FROM posts WHERE id = $1`, id).
		Scan(&p.ID, &p.Title, &p.Body, &ts)
	if err != nil {
		return domain.Post{}, notFound(err, "Post not found")
	}
	p.CreatedAt = unstamp(ts)

	stmt := `
		SELECT
			c.id, c.message, c.parent_id, c.created_at,
			u.id, u.name,
			(SELECT count(*) FROM likes WHERE comment_id = c.id),
			EXISTS(SELECT 1 FROM likes WHERE comment_id = c.id AND user_id = $1)
		FROM comments AS c JOIN users AS u ON c.user_id = u.id
		WHERE c.post_id = $2
		ORDER BY c.created_at DESC, c.rowid DESC;`

	rows, err := l.DB.QueryContext(ctx, stmt, viewerID, id)
	if err != nil {
		return domain.Post{}, domain.Internal(err)
	}
	defer rows.Close()

	p.Comments = []domain.Comment{}
	for rows.Next() {
		var (
			c      domain.Comment
			parent sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Message, &parent, &ts,
			&c.User.ID, &c.User.Name, &c.LikeCount, &c.LikedByMe); err != nil {
			return domain.Post{}, domain.Internal(err)
		}
		if parent.Valid {
			c.ParentID = &parent.String
		}
		c.CreatedAt = unstamp(ts)
		p.Comments = append(p.Comments, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Post{}, domain.Internal(err)
	}
	return p, nil
}

func (l *SQLite) CreatePost(ctx context.Context, p domain.Post) error {
	err := l.exec(ctx, `INSERT INTO posts(id, title, body, created_at) VALUES($1, $2, $3, $4)`,
		p.ID, p.Title, p.Body, stamp(p.CreatedAt))
	if err != nil {
		return domain.Internal(fmt.Errorf("create post: %w", err))
	}
	return nil
}

func (l *SQLite) CreateUser(ctx context.Context, u domain.User) error {
	if err := l.exec(ctx, `INSERT INTO users(id, name) VALUES($1, $2)`, u.ID, u.Name); err != nil {
		return domain.Internal(fmt.Errorf("create user: %w", err))
	}
	return nil
}

func (l *SQLite) User(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := l.DB.QueryRowContext(ctx, `SELECT id, name FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Name)
	if err != nil {
		return domain.User{}, notFound(err, "User not found")
	}
	return u, nil
}

func (l *SQLite) UserByName(ctx context.Context, name string) (domain.User, error) {
	var u domain.User
	err := l.DB.QueryRowContext(ctx, `SELECT id, name FROM users WHERE name = $1`, name).Scan(&u.ID, &u.Name)
	if err != nil {
		return domain.User{}, notFound(err, "User not found")
	}
	return u, nil
}

func (l *SQLite) Comment(ctx context.Context, id string) (domain.CommentRef, error) {
	var c domain.CommentRef
	err := l.DB.QueryRowContext(ctx, `SELECT id, post_id, user_id FROM comments WHERE id = $1`, id).
		Scan(&c.ID, &c.PostID, &c.UserID)
	if err != nil {
		return domain.CommentRef{}, notFound(err, "Comment not found")
	}
	return c, nil
}

// CreateComment создает комментарий. Родитель, если он задан,
// должен принадлежать тому же посту.
func (l *SQLite) CreateComment(ctx context.Context, postID string, c domain.Comment) error {
	tx, err := l.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return domain.Internal(err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, postID).Scan(&exists); err != nil {
		return domain.Internal(err)
	}
	if !exists {
		return domain.NotFound("Post not found")
	}

	if p := c.Parent(); p != "" {
		var parentPost string
		err := tx.QueryRowContext(ctx, `SELECT post_id FROM comments WHERE id = $1`, p).Scan(&parentPost)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && parentPost != postID) {
			return domain.Validation("Parent comment not found in this post")
		}
		if err != nil {
			return domain.Internal(err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO comments(id, post_id, user_id, parent_id, message, created_at)
		VALUES($1, $2, $3, $4, $5, $6)`,
		c.ID, postID, c.User.ID, c.ParentID, c.Message, stamp(c.CreatedAt))
	if err != nil {
		return domain.Internal(fmt.Errorf("create comment: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return domain.Internal(err)
	}
	return nil
}

func (l *SQLite) UpdateComment(ctx context.Context, id, message string) (string, error) {
	res, err := l.DB.ExecContext(ctx, `UPDATE comments SET message = $1 WHERE id = $2`, message, id)
	if err != nil {
		return "", domain.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", domain.NotFound("Comment not found")
	}
	return message, nil
}

// DeleteComment удаляет комментарий, ответы удаляются каскадно.
func (l *SQLite) DeleteComment(ctx context.Context, id string) (string, error) {
	res, err := l.DB.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return "", domain.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", domain.NotFound("Comment not found")
	}
	return id, nil
}

// ToggleLike снимает лайк, если он был, иначе ставит.
func (l *SQLite) ToggleLike(ctx context.Context, userID, commentID string) (bool, error) {
	tx, err := l.DB.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, domain.Internal(err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM comments WHERE id = $1)`, commentID).Scan(&exists); err != nil {
		return false, domain.Internal(err)
	}
	if !exists {
		return false, domain.NotFound("Comment not found")
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE user_id = $1 AND comment_id = $2`, userID, commentID)
	if err != nil {
		return false, domain.Internal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.Internal(err)
	}

	added := n == 0
	if added {
		_, err = tx.ExecContext(ctx, `INSERT INTO likes(user_id, comment_id) VALUES($1, $2)`, userID, commentID)
		if err != nil {
			return false, domain.Internal(fmt.Errorf("add like: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return false, domain.Internal(err)
	}
	return added, nil
}
