// пакет thread хранит комментарии одного поста на стороне клиента
// и строит из плоского списка дерево ответов.
package thread

import (
	"sync"

	"github.com/rtemka/blog/domain"
)

// Root - ключ корзины корневых комментариев.
const Root = ""

// Store - комментарии поста в порядке показа (новые первыми)
// и индекс parentId -> ответы, который перестраивается
// при первом чтении после изменения.
//
// Все методы можно вызывать из разных горутин.
type Store struct {
	mu       sync.Mutex
	comments []domain.Comment
	rev      uint64 // ревизия, растет с каждым изменением

	index    map[string][]domain.Comment
	indexRev uint64
	built    bool
}

// New возвращает [*Store], заполненный comments.
func New(comments []domain.Comment) *Store {
	s := &Store{}
	s.Seed(comments)
	return s
}

// Seed заменяет весь набор комментариев.
func (s *Store) Seed(comments []domain.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append([]domain.Comment(nil), comments...)
	s.rev++
}

// ChildrenOf возвращает комментарии с родителем parentID
// (Root - корневые) в порядке хранения. Если таких нет - nil.
func (s *Store) ChildrenOf(parentID string) []domain.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.group()[parentID])
}

// Roots - то же, что ChildrenOf(Root).
func (s *Store) Roots() []domain.Comment {
	return s.ChildrenOf(Root)
}

// Insert добавляет комментарий в начало набора,
// среди своих соседей он окажется первым.
func (s *Store) Insert(c domain.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append([]domain.Comment{c}, s.comments...)
	s.rev++
}

// UpdateMessage меняет текст комментария id, если он есть.
func (s *Store) UpdateMessage(id, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 || s.comments[i].Message == message {
		return
	}
	s.comments[i].Message = message
	s.rev++
}

// Remove удаляет ровно один комментарий id.
// Ответы на него остаются в наборе.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return
	}
	s.comments = append(s.comments[:i:i], s.comments[i+1:]...)
	s.rev++
}

// ToggleLike отражает подтвержденное сервером решение:
// likedByMe = addLike, счетчик +1 или -1. Счетчик не ограничивается
// снизу, за его корректность отвечает сервер.
func (s *Store) ToggleLike(id string, addLike bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return
	}
	c := &s.comments[i]
	c.LikedByMe = addLike
	if addLike {
		c.LikeCount++
	} else {
		c.LikeCount--
	}
	s.rev++
}

// Get возвращает комментарий по id.
func (s *Store) Get(id string) (domain.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.find(id)
	if i < 0 {
		return domain.Comment{}, false
	}
	return s.comments[i], true
}

// Comments возвращает копию набора в порядке хранения.
func (s *Store) Comments() []domain.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.comments)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.comments)
}

// Version - ревизия набора. Меняется только когда меняется содержимое.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

func (s *Store) find(id string) int {
	for i := range s.comments {
		if s.comments[i].ID == id {
			return i
		}
	}
	return -1
}

// group возвращает индекс для текущей ревизии, при необходимости
// перестраивая его. Вызывается под s.mu.
func (s *Store) group() map[string][]domain.Comment {
	if s.built && s.indexRev == s.rev {
		return s.index
	}
	s.index = Group(s.comments)
	s.indexRev = s.rev
	s.built = true
	return s.index
}

// Group раскладывает комментарии по id родителя за один проход,
// сохраняя относительный порядок. Корневые лежат по ключу Root.
func Group(comments []domain.Comment) map[string][]domain.Comment {
	m := make(map[string][]domain.Comment)
	for i := range comments {
		p := comments[i].Parent()
		m[p] = append(m[p], comments[i])
	}
	return m
}

func clone(cs []domain.Comment) []domain.Comment {
	if len(cs) == 0 {
		return nil
	}
	return append([]domain.Comment(nil), cs...)
}
