package domain

import (
	"errors"
	"fmt"
)

// Kind - категория ошибки. По ней выбирается HTTP-статус
// на сервере и восстанавливается ошибка на клиенте.
type Kind int

const (
	KindInternal   Kind = iota // сбой сервера или БД
	KindValidation             // некорректный ввод, пользователь может исправить
	KindPermission             // не владелец комментария
	KindAuth                   // нет или неверная личность
	KindNotFound               // нет такой сущности
	KindTransport              // сеть или неожиданный ответ сервера
)

func (k Kind) String() string {
	names := [...]string{"internal", "validation", "permission", "auth", "not_found", "transport"}
	if k < 0 || int(k) >= len(names) {
		return "unknown"
	}
	return names[k]
}

// Error - ошибка приложения. Message - сообщение, которое
// можно показать пользователю, Err - исходная причина.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is сравнивает ошибки по категории, поэтому
// errors.Is(err, ErrNotFound) верно для любой NotFound ошибки.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInternal   = &Error{Kind: KindInternal, Message: "internal server error"}
	ErrValidation = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrPermission = &Error{Kind: KindPermission, Message: "permission denied"}
	ErrAuth       = &Error{Kind: KindAuth, Message: "unauthenticated"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrTransport  = &Error{Kind: KindTransport, Message: "transport error"}
)

func Validation(msg string) error { return &Error{Kind: KindValidation, Message: msg} }
func Permission(msg string) error { return &Error{Kind: KindPermission, Message: msg} }
func Auth(msg string) error       { return &Error{Kind: KindAuth, Message: msg} }
func NotFound(msg string) error   { return &Error{Kind: KindNotFound, Message: msg} }

// Transport оборачивает сетевую ошибку или ответ сервера с кодом,
// который не относится ни к одной другой категории.
func Transport(err error) error {
	return &Error{Kind: KindTransport, Err: err}
}

// Internal оборачивает ошибку хранилища.
func Internal(err error) error {
	return &Error{Kind: KindInternal, Err: err}
}

// KindOf возвращает категорию ошибки, для ошибок
// не из этого пакета - KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message возвращает текст ошибки для показа пользователю.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
