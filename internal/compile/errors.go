package compile

import (
	"errors"
	"fmt"

	"github.com/ppiankov/invariant/internal/model"
)

// Specification error kinds, matchable with errors.Is
var (
	ErrEmptyClaimName  = errors.New("empty claim name")
	ErrDuplicateClaim  = errors.New("duplicate claim name")
	ErrInvalidSelector = errors.New("invalid selector")
	ErrUnknownClaim    = errors.New("unknown claim")
	ErrUnknownRule     = errors.New("unknown rule")
	ErrMissingValue    = errors.New("missing value")
	ErrValueType       = errors.New("wrong value type")
	ErrUnknownSource   = errors.New("unknown source")
)

// Error is a specification error identifying the offending claim or predicate
type Error struct {
	Kind      error
	Claim     string
	Selector  string
	Predicate int // -1 when the error concerns a claim declaration
	Rule      model.Rule
	When      bool // The error is in the predicate's when condition
	Detail    string
	Err       error
}

func (e *Error) Error() string {
	subject := fmt.Sprintf("Predicate %d", e.Predicate)
	if e.When {
		subject = fmt.Sprintf("When condition of predicate %d", e.Predicate)
	}

	var msg string
	switch e.Kind {
	case ErrEmptyClaimName:
		msg = fmt.Sprintf("Claim name cannot be empty (selector '%s')", e.Selector)
	case ErrDuplicateClaim:
		msg = fmt.Sprintf("Duplicate claim name: %s", e.Claim)
	case ErrInvalidSelector:
		msg = fmt.Sprintf("Invalid selector '%s' in claim '%s'", e.Selector, e.Claim)
	case ErrUnknownClaim:
		msg = fmt.Sprintf("%s references unknown claim '%s'", subject, e.Claim)
	case ErrUnknownRule:
		msg = fmt.Sprintf("%s (claim '%s') uses unknown rule '%s'", subject, e.Claim, e.Rule)
	case ErrMissingValue:
		msg = fmt.Sprintf("%s (claim '%s'): rule '%s' requires a value", subject, e.Claim, e.Rule)
	case ErrValueType:
		msg = fmt.Sprintf("%s (claim '%s'): rule '%s' %s", subject, e.Claim, e.Rule, e.Detail)
	case ErrUnknownSource:
		msg = fmt.Sprintf("%s (claim '%s'): unknown source '%s'", subject, e.Claim, e.Detail)
	default:
		msg = fmt.Sprintf("%s: %v", subject, e.Kind)
	}

	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
