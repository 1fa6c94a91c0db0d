// Package errs holds the typed failures reported by the domain packages.
//
// Each domain package declares its failures as package-level sentinels built
// with New, so callers match them with errors.Is and the transport layer maps
// them to responses by Category and Code.
package errs

import "errors"

// Category groups failures the way callers react to them.
type Category string

const (
	CategoryIdentity Category = "identity"
	CategoryStock    Category = "stock"
	CategoryWorkflow Category = "workflow"
	CategoryNotFound Category = "not_found"
)

// Error is a recoverable domain failure. Operations that return one leave no
// partial state behind.
type Error struct {
	Category Category
	Code     string
	Message  string
}

func New(category Category, code, message string) *Error {
	return &Error{Category: category, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// As unwraps err to the first domain failure in its chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CategoryOf reports the category of err, or "" when err is not a domain failure.
func CategoryOf(err error) Category {
	if de, ok := As(err); ok {
		return de.Category
	}
	return ""
}
