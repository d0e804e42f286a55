package apperr

import (
	"errors"
	"net/http"
)

// Kind 区分可恢复的业务错误。
type Kind string

const (
	KindValidation         Kind = "validation"
	KindDuplicateEmail     Kind = "duplicate_email"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindNotAuthenticated   Kind = "not_authenticated"
	KindWrongOldPassword   Kind = "wrong_old_password"
	KindProductUnavailable Kind = "product_unavailable"
	KindEmptyCart          Kind = "empty_cart"
	KindNotFound           Kind = "not_found"
)

// Error 是对外暴露的错误描述：Kind 供程序判断，Field 指向出错的输入字段，Message 给人看。
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrEmptyCart) 这类判断只比较 Kind。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrDuplicateEmail     = &Error{Kind: KindDuplicateEmail, Field: "email", Message: "email already registered"}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrNotAuthenticated   = &Error{Kind: KindNotAuthenticated, Message: "login required"}
	ErrWrongOldPassword   = &Error{Kind: KindWrongOldPassword, Field: "oldPassword", Message: "old password is incorrect"}
	ErrProductUnavailable = &Error{Kind: KindProductUnavailable, Message: "product unavailable"}
	ErrEmptyCart          = &Error{Kind: KindEmptyCart, Message: "cart is empty"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
)

// Validation 构造带字段信息的校验错误。
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NotFound 构造带说明的 not found 错误。
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// As 取出链上的 *Error。
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// KindOf 返回 err 的 Kind；非业务错误返回空串。
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// HTTPStatus 把错误映射为 HTTP 状态码，未知错误按 500 处理。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation, KindProductUnavailable, KindEmptyCart:
		return http.StatusBadRequest
	case KindDuplicateEmail:
		return http.StatusConflict
	case KindInvalidCredentials, KindNotAuthenticated:
		return http.StatusUnauthorized
	case KindWrongOldPassword:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
