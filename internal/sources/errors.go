package sources

import (
	"errors"
	"fmt"
)

// CriticalError marks a failure that makes the rest of a run pointless,
// such as the upstream rejecting our credentials. The download driver
// stops issuing new items when one surfaces.
type CriticalError struct {
	Err error
}

func (e *CriticalError) Error() string {
	return fmt.Sprintf("critical: %v", e.Err)
}

func (e *CriticalError) Unwrap() error { return e.Err }

// IsCritical reports whether a *CriticalError is anywhere in err's chain.
func IsCritical(err error) bool {
	var c *CriticalError
	return errors.As(err, &c)
}

// ParseError is a payload the upstream served but we could not turn into
// an entity. Never retryable; the snippet goes into the progress row's
// error message for diagnosis.
type ParseError struct {
	Source  string
	Item    string
	Msg     string
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet != "" {
		return fmt.Sprintf("%s: parse %s: %s (payload: %q)", e.Source, e.Item, e.Msg, e.Snippet)
	}
	return fmt.Sprintf("%s: parse %s: %s", e.Source, e.Item, e.Msg)
}

// NewParseError builds a ParseError, truncating the payload snippet.
func NewParseError(source, item, msg string, payload []byte) *ParseError {
	const snippetLen = 120
	snippet := string(payload)
	if len(snippet) > snippetLen {
		snippet = snippet[:snippetLen]
	}
	return &ParseError{Source: source, Item: item, Msg: msg, Snippet: snippet}
}
