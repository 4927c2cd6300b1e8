// Package service 包含了应用的业务逻辑层。
package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// 错误分类，handler 根据分类映射 HTTP 状态码。
var (
	ErrAuth        = errors.New("unauthorized")
	ErrValidation  = errors.New("validation failed")
	ErrQuota       = errors.New("quota exceeded")
	ErrNotFound    = errors.New("not found")
	ErrUpstream    = errors.New("upstream failure")
	ErrPersistence = errors.New("persistence failure")
)

// Error 携带分类、面向用户的消息以及底层原因。
type Error struct {
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func newError(kind error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind error, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// PublicMessage 返回可以直接展示给调用方的错误消息，不暴露底层原因。
func PublicMessage(err error) string {
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return "internal server error"
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
