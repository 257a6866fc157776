package thread

import "github.com/rtemka/blog/domain"

// Node - комментарий вместе с ответами на него.
type Node struct {
	domain.Comment
	Replies []Node `json:"replies,omitempty"`
}

// Tree возвращает дерево комментариев, начиная с корневых.
// Комментарии, чей родитель отсутствует в наборе, в дерево не попадают.
func (s *Store) Tree() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ToTree(s.group())
}

// ToTree строит дерево по индексу, полученному из Group.
func ToTree(m map[string][]domain.Comment) []Node {
	return dig(Root, m)
}

func dig(parent string, m map[string][]domain.Comment) []Node {
	children := m[parent]
	if len(children) == 0 {
		return nil
	}

	out := make([]Node, 0, len(children))
	for i := range children {
		out = append(out, Node{
			Comment: children[i],
			Replies: dig(children[i].ID, m),
		})
	}
	return out
}

// Count возвращает число комментариев в поддереве, не считая сам узел.
func (n Node) Count() int {
	var c int
	for i := range n.Replies {
		c += 1 + n.Replies[i].Count()
	}
	return c
}
