// Package heaperrors provides standardized error messaging for the managed
// heap, in the style of the teacher's internal/errors package: a closed set
// of categories, a code, a message, and the caller that raised it.
package heaperrors

import (
	"fmt"
	"log"
	"os"
	"runtime"
)

// Category represents the kind of failure a HeapError describes.
type Category string

const (
	// CategoryRefTable covers reference-table growth failure (spec.md
	// §7.2), which is fatal: without handles no further progress is
	// possible.
	CategoryRefTable Category = "REF_TABLE"
	// CategoryHandle covers asking for the handle of a pointer the table
	// has no entry for (GetRef's lookup miss). Deref's range and liveness
	// checks panic directly and do not go through this package.
	CategoryHandle Category = "HANDLE"
)

// HeapError is a standardized, categorized error.
type HeapError struct {
	Category Category
	Code     string
	Message  string
	Caller   string
}

func (e *HeapError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// New constructs a HeapError, recording the immediate caller for context.
func New(category Category, code, message string) *HeapError {
	caller := "unknown"

	if pc, _, _, ok := runtime.Caller(1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &HeapError{
		Category: category,
		Code:     code,
		Message:  message,
		Caller:   caller,
	}
}

// Fatal logs err and terminates the process. It is the only place in this
// module that calls os.Exit: reference-table growth failure and handle
// misuse that reach here have no recoverable path per spec.md §7.
func Fatal(err error) {
	log.SetOutput(os.Stderr)
	log.Printf("fatal: %v", err)
	os.Exit(1)
}
