package errcodes

import (
	"net/http"
)

// Error is a terminal reconciliation outcome. Provider failures never reach
// this type; they are absorbed inside the engine as "no data". Only the
// conditions a caller must distinguish are represented here, each with a
// stable string code matchable via errors.Is/errors.As.
type Error struct {
	HTTPCode int
	Message  string
	Code     string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.HTTPCode = err.HTTPCode
	te.Message = err.Message
	te.Code = err.Code
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.Code == err.Code
}

// NotFound reports that candidate acquisition produced zero records after all
// fallback attempts.
func NotFound(resource string) error {
	return &Error{
		http.StatusNotFound,
		resource + " not found.",
		"not_found",
	}
}

// NoUsableISBN reports that a record was reconciled but no value in its
// identifier union passes canonical-form validation. Callers can treat this
// as non-fatal when identifier-dependent downstream steps are optional.
func NoUsableISBN() error {
	return &Error{
		http.StatusUnprocessableEntity,
		"No valid ISBN-13 could be determined for this book.",
		"no_usable_isbn",
	}
}

// ValidationError reports a malformed reconciliation request.
func ValidationError(msg string) error {
	return &Error{
		http.StatusUnprocessableEntity,
		msg,
		"validation_error",
	}
}
