// пакет moderation проверяет текст комментария перед записью в БД.
package moderation

import (
	"strings"

	strip "github.com/grokify/html-strip-tags-go"
	"github.com/rtemka/blog/domain"
)

// запрещенные слова по умолчанию.
var swearing = [...]string{"qwerty", "йцукен", "zxvbnm"}

var (
	ErrEmpty  = domain.Validation("Message is required")
	ErrBanned = domain.Validation("Message contains forbidden words")
)

// Checker очищает текст от html-разметки и
// проверяет, нет ли в нем запрещенных слов.
type Checker struct {
	words []string
}

// New возвращает [*Checker]. Если слова не заданы,
// используется список по умолчанию.
func New(words ...string) *Checker {
	c := Checker{}
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			c.words = append(c.words, w)
		}
	}
	if len(c.words) == 0 {
		c.words = swearing[:]
	}
	return &c
}

// Check возвращает очищенный текст или ошибку валидации.
func (c *Checker) Check(message string) (string, error) {
	msg := strings.TrimSpace(strip.StripTags(message))
	if msg == "" {
		return "", ErrEmpty
	}
	if c.Banned(msg) {
		return "", ErrBanned
	}
	return msg, nil
}

// Banned проверяет, содержит ли текст запрещенные слова.
func (c *Checker) Banned(message string) bool {
	lower := strings.ToLower(message)
	for i := range c.words {
		if strings.Contains(lower, c.words[i]) {
			return true
		}
	}
	return false
}
