package completion

import "fmt"

// Category classifies a completion failure for the caller. The category is
// always surfaced; internal diagnostic detail stays in the logs.
type Category string

const (
	CategoryUnauthorized Category = "unauthorized"
	CategoryForbidden    Category = "forbidden"
	CategoryNotFound     Category = "not_found"
	CategoryConflict     Category = "conflict"
	CategoryBadRequest   Category = "bad_request"
	CategoryInternal     Category = "internal"
)

// Failure is a structured completion error: a human-readable message plus a
// categorical status.
type Failure struct {
	Category Category
	Message  string
	cause    error
}

func (f *Failure) Error() string {
	if f.cause != nil {
		return f.Message + ": " + f.cause.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.cause }

// reject builds a pre-mutation validation failure.
func reject(cat Category, message string) *Failure {
	return &Failure{Category: cat, Message: message}
}

// dependency builds a mid-pipeline failure caused by a collaborator.
func dependency(message string, err error) *Failure {
	return &Failure{Category: CategoryInternal, Message: message, cause: err}
}

func rejectf(cat Category, format string, args ...any) *Failure {
	return reject(cat, fmt.Sprintf(format, args...))
}
