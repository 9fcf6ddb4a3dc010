package plugin

import (
	"errors"
	"fmt"
)

// Kind classifies plugin failures for logs.
type Kind int

const (
	KindUnknown Kind = iota
	KindRequest
	KindParse
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindParse:
		return "parse"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Error is returned by Crawl. Name is set for KindCustom only.
type Error struct {
	Kind    Kind
	Name    string
	Plugin  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	kind := e.Kind.String()
	if e.Kind == KindCustom && e.Name != "" {
		kind += "(" + e.Name + ")"
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("plugin %s: %s error: %s", e.Plugin, kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// RequestError reports a network or HTTP failure.
func RequestError(plugin string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindRequest, Plugin: plugin, Message: fmt.Sprintf(format, args...), Err: err}
}

// ParseError reports a page or payload that did not have the expected shape.
func ParseError(plugin string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Plugin: plugin, Message: fmt.Sprintf(format, args...), Err: err}
}

// CustomError reports a plugin specific condition identified by name.
func CustomError(plugin, name string, err error, format string, args ...any) *Error {
	return &Error{Kind: KindCustom, Name: name, Plugin: plugin, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
