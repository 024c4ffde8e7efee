package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

/*
Error aggregates several failures into a single error value. It is used
where a loop keeps going after a failure, such as a chunked bulk rewrite,
and the caller should still see every cause.
*/
type Error struct {
	Errs []error
	Msgs []any
}

func NewError(errs ...any) error {
	err := &Error{}

	for _, msg := range errs {
		switch v := msg.(type) {
		case nil:
		case error:
			err.Errs = append(err.Errs, v)
		case string:
			err.Msgs = append(err.Msgs, v)
		}
	}

	if len(err.Errs) == 0 && len(err.Msgs) == 0 {
		return nil
	}

	return err
}

func (err *Error) Error() string {
	builder := &strings.Builder{}

	for i, e := range err.Errs {
		if i > 0 {
			builder.WriteString("; ")
		}
		builder.WriteString(e.Error())
	}

	for _, msg := range err.Msgs {
		if builder.Len() > 0 {
			builder.WriteString("; ")
		}
		builder.WriteString(fmt.Sprintf("%v", msg))
	}

	return builder.String()
}

func (err *Error) Unwrap() []error {
	return err.Errs
}

// Is and As forward to the standard library so callers importing this
// package under its own name keep both spellings available.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

func New(text string) error {
	return stderrors.New(text)
}
