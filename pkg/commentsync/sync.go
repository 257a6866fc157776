// пакет commentsync применяет подтвержденные сервером мутации
// комментариев к локальному набору [thread.Store], не перезагружая пост.
package commentsync

import (
	"context"

	"github.com/rtemka/blog/domain"
	"github.com/rtemka/blog/pkg/thread"
	"go.uber.org/zap"
)

// Client - внешние операции над постом и комментариями.
// Ошибки должны нести сообщение, которое можно показать пользователю.
type Client interface {
	Post(ctx context.Context, id string) (domain.Post, error)
	CreateComment(ctx context.Context, req domain.CreateCommentRequest) (domain.Comment, error)
	UpdateComment(ctx context.Context, req domain.UpdateCommentRequest) (domain.UpdateCommentResponse, error)
	DeleteComment(ctx context.Context, req domain.DeleteCommentRequest) (domain.DeleteCommentResponse, error)
	ToggleCommentLike(ctx context.Context, req domain.ToggleLikeRequest) (domain.ToggleLikeResponse, error)
}

// Coordinator связывает клиента и локальный набор комментариев одного поста.
// Набор меняется только после успешного ответа сервера, поэтому
// при ошибке откатывать нечего.
type Coordinator struct {
	client Client
	store  *thread.Store
	postID string
	logger *zap.Logger
}

// New возвращает [*Coordinator] для поста postID.
func New(client Client, store *thread.Store, postID string, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		client: client,
		store:  store,
		postID: postID,
		logger: logger.With(zap.String("post_id", postID)),
	}
}

// Store возвращает набор, который обновляет координатор.
func (c *Coordinator) Store() *thread.Store { return c.store }

// Load загружает пост и заполняет набор его комментариями.
func (c *Coordinator) Load(ctx context.Context) (domain.Post, error) {
	p, err := c.client.Post(ctx, c.postID)
	if err != nil {
		c.logger.Warn("load post failed", zap.Error(err))
		return domain.Post{}, err
	}
	c.store.Seed(p.Comments)
	c.logger.Debug("post loaded", zap.Int("comments", len(p.Comments)))
	return p, nil
}

// Create отправляет новый комментарий (parentID == nil - корневой)
// и после подтверждения добавляет его в начало набора.
func (c *Coordinator) Create(ctx context.Context, a *Affordance, message string, parentID *string) (domain.Comment, error) {
	seq := a.begin()
	cm, err := c.client.CreateComment(ctx, domain.CreateCommentRequest{
		PostID:   c.postID,
		Message:  message,
		ParentID: parentID,
	})
	if err != nil {
		c.failed("create", "", err)
		a.finish(seq, err)
		return domain.Comment{}, err
	}
	c.store.Insert(cm)
	c.applied("create", cm.ID)
	a.finish(seq, nil)
	return cm, nil
}

// Update меняет текст комментария id.
func (c *Coordinator) Update(ctx context.Context, a *Affordance, id, message string) error {
	seq := a.begin()
	resp, err := c.client.UpdateComment(ctx, domain.UpdateCommentRequest{
		PostID:  c.postID,
		ID:      id,
		Message: message,
	})
	if err != nil {
		c.failed("update", id, err)
		a.finish(seq, err)
		return err
	}
	c.store.UpdateMessage(id, resp.Message)
	c.applied("update", id)
	a.finish(seq, nil)
	return nil
}

// Delete удаляет комментарий id.
func (c *Coordinator) Delete(ctx context.Context, a *Affordance, id string) error {
	seq := a.begin()
	resp, err := c.client.DeleteComment(ctx, domain.DeleteCommentRequest{PostID: c.postID, ID: id})
	if err != nil {
		c.failed("delete", id, err)
		a.finish(seq, err)
		return err
	}
	c.store.Remove(resp.ID)
	c.applied("delete", resp.ID)
	a.finish(seq, nil)
	return nil
}

// ToggleLike ставит или снимает лайк, решение принимает сервер.
func (c *Coordinator) ToggleLike(ctx context.Context, a *Affordance, id string) (bool, error) {
	seq := a.begin()
	resp, err := c.client.ToggleCommentLike(ctx, domain.ToggleLikeRequest{PostID: c.postID, ID: id})
	if err != nil {
		c.failed("toggle_like", id, err)
		a.finish(seq, err)
		return false, err
	}
	c.store.ToggleLike(id, resp.AddLike)
	c.applied("toggle_like", id)
	a.finish(seq, nil)
	return resp.AddLike, nil
}

func (c *Coordinator) applied(op, id string) {
	c.logger.Debug("mutation applied",
		zap.String("op", op),
		zap.String("comment_id", id),
		zap.Uint64("version", c.store.Version()),
	)
}

func (c *Coordinator) failed(op, id string, err error) {
	c.logger.Info("mutation failed",
		zap.String("op", op),
		zap.String("comment_id", id),
		zap.Stringer("kind", domain.KindOf(err)),
		zap.Error(err),
	)
}
