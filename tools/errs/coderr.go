package errs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CodeError is a coded error value. Predefined instances (see predefined.go)
// classify every failure the relay handles at the connection boundary; use
// errors.Is against them to branch by class.
type CodeError struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}

func NewCodeError(code int, msg string) *CodeError {
	return &CodeError{Code: code, Msg: msg}
}

func (e *CodeError) Error() string {
	v := make([]string, 0, 3)
	v = append(v, strconv.Itoa(e.Code), e.Msg)
	if e.Detail != "" {
		v = append(v, e.Detail)
	}
	return strings.Join(v, " ")
}

// Is matches by code so wrapped instances compare equal to their template.
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	return ok && t.Code == e.Code
}

// Wrap attaches a call stack to the error.
func (e *CodeError) Wrap() error {
	return errors.WithStack(e)
}

// WrapMsg clones the error, appends detail, and attaches a call stack.
func (e *CodeError) WrapMsg(msg string, kv ...any) error {
	n := *e
	detail := toString(msg, kv)
	if n.Detail == "" {
		n.Detail = detail
	} else {
		n.Detail += ", " + detail
	}
	return errors.WithStack(&n)
}

// Wrap attaches a call stack to an arbitrary error.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(err)
}

// WrapMsg annotates an arbitrary error with a message and call stack.
func WrapMsg(err error, msg string, kv ...any) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(errors.WithMessage(err, toString(msg, kv)))
}

func toString(msg string, kv []any) string {
	var sb strings.Builder
	sb.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		sb.WriteString(fmt.Sprintf(" %v=%v", kv[i], kv[i+1]))
	}
	return sb.String()
}
