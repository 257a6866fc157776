// пакет postgres - хранилище блога в PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rtemka/blog/domain"
)

//go:embed schema.sql
var schema string

// Postgres выполняет CRUD операции с БД
type Postgres struct {
	db *pgxpool.Pool
}

// New выполняет подключение
// и возвращает объект для взаимодействия с БД.
// maxConns <= 0 и idle <= 0 оставляют настройки пула по умолчанию.
func New(ctx context.Context, connString string, maxConns int32, idle time.Duration) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if idle > 0 {
		cfg.MaxConnIdleTime = idle
	}

	pool, err := pgxpool.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &Postgres{db: pool}, pool.Ping(ctx)
}

// Close выполняет закрытие подключения к БД
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

// Migrate создает таблицы, если их еще нет.
func (p *Postgres) Migrate(ctx context.Context) error {
	return p.exec(ctx, schema)
}

// exec вспомогательная функция, выполняет
// tx.Exec() в транзакции
func (p *Postgres) exec(ctx context.Context, sql string, args ...any) error {
	return p.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, sql, args...)
		return err
	})
}

// notFound переводит pgx.ErrNoRows в ошибку domain.
func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound(msg)
	}
	return domain.Internal(err)
}

func calcLimitOffset(pageNum, pageSize int) (int, int) {
	if pageNum < 1 {
		return 0, 0
	}
	return pageSize, (pageNum - 1) * pageSize
}

// Posts возвращает посты от новых к старым. page < 1 - все посты.
func (p *Postgres) Posts(ctx context.Context, page int) ([]domain.PostSummary, error) {
	stmt := `SELECT id, title FROM posts ORDER BY created_at DESC, id`
	var args []any
	if l, o := calcLimitOffset(page, domain.PageSize); l > 0 {
		stmt += ` LIMIT $1 OFFSET $2`
		args = append(args, l, o)
	}

	rows, err := p.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, domain.Internal(err)
	}
	defer rows.Close()

	posts := []domain.PostSummary{}
	for rows.Next() {
		var s domain.PostSummary
		if err := rows.Scan(&s.ID, &s.Title); err != nil {
			return nil, domain.Internal(err)
		}
		posts = append(posts, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err)
	}
	return posts, nil
}

// CountPosts возвращает общее количество постов.
func (p *Postgres) CountPosts(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRow(ctx, `SELECT count(*) FROM posts`).Scan(&n); err != nil {
		return 0, domain.Internal(err)
	}
	return n, nil
}

// Post возвращает пост с комментариями от новых к старым
// и отметками лайков пользователя viewerID.
func (p *Postgres) Post(ctx context.Context, id, viewerID string) (domain.Post, error) {
	var post domain.Post
	err := p.db.QueryRow(ctx,
		`SELECT id, title, body, created_at FROM posts WHERE id = $1`, id).
		Scan(&post.ID, &post.Title, &post.Body, &post.CreatedAt)
	if err != nil {
		return domain.Post{}, notFound(err, "Post not found")
	}
	post.CreatedAt = post.CreatedAt.UTC()

	stmt := `
		SELECT
			c.id, c.message, c.parent_id, c.created_at,
			u.id, u.name,
			(SELECT count(*) FROM likes WHERE comment_id = c.id),
			EXISTS(SELECT 1 FROM likes WHERE comment_id = c.id AND user_id = $1)
		FROM comments AS c JOIN users AS u ON c.user_id = u.id
		WHERE c.post_id = $2
		ORDER BY c.created_at DESC, c.id DESC;`

	rows, err := p.db.Query(ctx, stmt, viewerID, id)
	if err != nil {
		return domain.Post{}, domain.Internal(err)
	}
	defer rows.Close()

	post.Comments = []domain.Comment{}
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.Message, &c.ParentID, &c.CreatedAt,
			&c.User.ID, &c.User.Name, &c.LikeCount, &c.LikedByMe); err != nil {
			return domain.Post{}, domain.Internal(err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		post.Comments = append(post.Comments, c)
	}
	if err := rows.Err(); err != nil {
		return domain.Post{}, domain.Internal(err)
	}
	return post, nil
}

func (p *Postgres) CreatePost(ctx context.Context, post domain.Post) error {
	err := p.exec(ctx, `INSERT INTO posts(id, title, body, created_at) VALUES ($1, $2, $3, $4)`,
		post.ID, post.Title, post.Body, post.CreatedAt)
	if err != nil {
		return domain.Internal(fmt.Errorf("create post: %w", err))
	}
	return nil
}

func (p *Postgres) CreateUser(ctx context.Context, u domain.User) error {
	if err := p.exec(ctx, `INSERT INTO users(id, name) VALUES ($1, $2)`, u.ID, u.Name); err != nil {
		return domain.Internal(fmt.Errorf("create user: %w", err))
	}
	return nil
}

func (p *Postgres) User(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := p.db.QueryRow(ctx, `SELECT id, name FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Name)
	if err != nil {
		return domain.User{}, notFound(err, "User not found")
	}
	return u, nil
}

func (p *Postgres) UserByName(ctx context.Context, name string) (domain.User, error) {
	var u domain.User
	err := p.db.QueryRow(ctx, `SELECT id, name FROM users WHERE name = $1`, name).Scan(&u.ID, &u.Name)
	if err != nil {
		return domain.User{}, notFound(err, "User not found")
	}
	return u, nil
}

func (p *Postgres) Comment(ctx context.Context, id string) (domain.CommentRef, error) {
	var c domain.CommentRef
	err := p.db.QueryRow(ctx, `SELECT id, post_id, user_id FROM comments WHERE id = $1`, id).
		Scan(&c.ID, &c.PostID, &c.UserID)
	if err != nil {
		return domain.CommentRef{}, notFound(err, "Comment not found")
	}
	return c, nil
}

// CreateComment создает комментарий. Родитель, если он задан,
// должен принадлежать тому же посту.
func (p *Postgres) CreateComment(ctx context.Context, postID string, c domain.Comment) error {
	return wrap(p.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, postID).Scan(&exists)
		if err != nil {
			return domain.Internal(err)
		}
		if !exists {
			return domain.NotFound("Post not found")
		}

		if parent := c.Parent(); parent != "" {
			var parentPost string
			err := tx.QueryRow(ctx, `SELECT post_id FROM comments WHERE id = $1`, parent).Scan(&parentPost)
			if errors.Is(err, pgx.ErrNoRows) || (err == nil && parentPost != postID) {
				return domain.Validation("Parent comment not found in this post")
			}
			if err != nil {
				return domain.Internal(err)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO comments(id, post_id, user_id, parent_id, message, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, postID, c.User.ID, c.ParentID, c.Message, c.CreatedAt)
		if err != nil {
			return domain.Internal(fmt.Errorf("create comment: %w", err))
		}
		return nil
	}))
}

func (p *Postgres) UpdateComment(ctx context.Context, id, message string) (string, error) {
	var msg string
	err := p.db.QueryRow(ctx,
		`UPDATE comments SET message = $1 WHERE id = $2 RETURNING message`, message, id).Scan(&msg)
	if err != nil {
		return "", notFound(err, "Comment not found")
	}
	return msg, nil
}

// DeleteComment удаляет комментарий, ответы удаляются каскадно.
func (p *Postgres) DeleteComment(ctx context.Context, id string) (string, error) {
	var deleted string
	err := p.db.QueryRow(ctx, `DELETE FROM comments WHERE id = $1 RETURNING id`, id).Scan(&deleted)
	if err != nil {
		return "", notFound(err, "Comment not found")
	}
	return deleted, nil
}

// ToggleLike снимает лайк, если он был, иначе ставит.
func (p *Postgres) ToggleLike(ctx context.Context, userID, commentID string) (bool, error) {
	var added bool
	err := p.db.BeginFunc(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM comments WHERE id = $1)`, commentID).Scan(&exists)
		if err != nil {
			return domain.Internal(err)
		}
		if !exists {
			return domain.NotFound("Comment not found")
		}

		tag, err := tx.Exec(ctx, `DELETE FROM likes WHERE user_id = $1 AND comment_id = $2`, userID, commentID)
		if err != nil {
			return domain.Internal(err)
		}
		if added = tag.RowsAffected() == 0; !added {
			return nil
		}

		_, err = tx.Exec(ctx, `INSERT INTO likes(user_id, comment_id) VALUES ($1, $2)`, userID, commentID)
		if err != nil {
			return domain.Internal(fmt.Errorf("add like: %w", err))
		}
		return nil
	})
	if err != nil {
		return false, wrap(err)
	}
	return added, nil
}

// wrap оборачивает ошибки транзакции, не относящиеся к domain.
func wrap(err error) error {
	var e *domain.Error
	if err == nil || errors.As(err, &e) {
		return err
	}
	return domain.Internal(err)
}

// RunFile читает и исполняет sql-файл.
func (p *Postgres) RunFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return p.exec(context.Background(), string(b))
}
