package errors

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cohesivestack/valgo"
)

/*
ValidationError rejects a request whose input is malformed: a bad category
name, a duplicate, an unknown reference or an out of range importance.
The Reason is meant to be shown to the caller verbatim.
*/
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}

	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

/*
ConflictError rejects a request that would break the taxonomy, such as a
parent cycle or a delete with dependents. Children and Records carry what
blocked it so the caller can retry with an explicit resolution.
*/
type ConflictError struct {
	Reason   string   `json:"reason"`
	Children []string `json:"children,omitempty"`
	Records  int64    `json:"records,omitempty"`
}

func (e *ConflictError) Error() string {
	return e.Reason
}

func Conflict(format string, args ...any) *ConflictError {
	return &ConflictError{Reason: fmt.Sprintf(format, args...)}
}

type NotFoundError struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func NotFound(kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}

/*
Warning reports a partial failure that did not undo the operation it was
attached to. Pending is the number of records still carrying a stale value
when it could be determined, or -1.
*/
type Warning struct {
	Message string `json:"message"`
	Pending int64  `json:"pending"`
	Err     error  `json:"-"`
}

func (w *Warning) Error() string {
	if w.Err == nil {
		return w.Message
	}

	return fmt.Sprintf("%s: %v", w.Message, w.Err)
}

func (w *Warning) Unwrap() error {
	return w.Err
}

/*
FromValgo flattens a failed valgo validation into a ValidationError. The
first failing field becomes Field, every message is kept in Reason.
*/
func FromValgo(val *valgo.Validation) error {
	if val == nil || val.Valid() {
		return nil
	}

	fields := make([]string, 0, len(val.Errors()))

	for name := range val.Errors() {
		fields = append(fields, name)
	}

	sort.Strings(fields)

	var reasons []string

	for _, name := range fields {
		reasons = append(reasons, val.Errors()[name].Messages()...)
	}

	field := ""

	if len(fields) > 0 {
		field = fields[0]
	}

	return &ValidationError{Field: field, Reason: strings.Join(reasons, "; ")}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return As(err, &target)
}

func IsConflict(err error) bool {
	var target *ConflictError
	return As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return As(err, &target)
}
