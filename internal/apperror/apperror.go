package apperror

import (
	"errors"
	"fmt"
)

// Kind категория ошибки домена
type Kind string

const (
	KindValidation Kind = "VALIDATION"  // Некорректный ввод
	KindConflict   Kind = "CONFLICT"    // Недопустимый переход или занятый ресурс
	KindNotFound   Kind = "NOT_FOUND"   // Сущность не найдена
	KindProcessor  Kind = "PROCESSOR"   // Ошибка платёжного процессора, можно повторить
	KindSideEffect Kind = "SIDE_EFFECT" // Ошибка уведомления/чата, только логируется
	KindInternal   Kind = "INTERNAL"    // Всё остальное
)

// Error типизированная ошибка операций движка
type Error struct {
	Kind    Kind
	Message string
	Meta    map[string]string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по категории, чтобы работал errors.Is(err, &Error{Kind: KindConflict})
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// With добавляет метаданные к ошибке
func (e *Error) With(key, value string) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]string)
	}
	e.Meta[key] = value
	return e
}

func newError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, nil, format, args...)
}

// Transition ошибка недопустимого перехода состояния
func Transition(entity string, from, to any) *Error {
	return Conflict("%s cannot move from %v to %v", entity, from, to).
		With("from", fmt.Sprint(from)).
		With("to", fmt.Sprint(to))
}

func NotFound(entity string, id any) *Error {
	return newError(KindNotFound, nil, "%s not found", entity).With("id", fmt.Sprint(id))
}

func Processor(cause error, format string, args ...any) *Error {
	return newError(KindProcessor, cause, format, args...)
}

func SideEffect(cause error, format string, args ...any) *Error {
	return newError(KindSideEffect, cause, format, args...)
}

func Internal(cause error, format string, args ...any) *Error {
	return newError(KindInternal, cause, format, args...)
}

// KindOf возвращает категорию ошибки; не типизированные ошибки считаются внутренними
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind проверяет категорию ошибки
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable проверяет можно ли повторить операцию без изменения ввода
func IsRetryable(err error) bool {
	return IsKind(err, KindProcessor)
}

// PublicMessage возвращает безопасное для клиента сообщение без внутренних причин
func PublicMessage(err error) string {
	var appErr *Error
	if !errors.As(err, &appErr) || appErr.Kind == KindInternal {
		return "internal error"
	}
	if appErr.Kind == KindProcessor {
		return "payment processor unavailable, please retry"
	}
	return appErr.Message
}
