package syntax

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotRecognized is returned by a Syntax for input that is not written in it.
// The registry moves on to the next syntax; any other error stops the search.
var ErrNotRecognized = errors.New("syntax: not recognized")

// ErrorKind classifies a ParseError.
type ErrorKind int

const (
	NoMatchingSyntax ErrorKind = iota
	Pgq
	Jaq
	SqlAlias
	Invalid
)

func (k ErrorKind) String() string {
	switch k {
	case NoMatchingSyntax:
		return "no_matching_syntax"
	case Pgq:
		return "pgq"
	case Jaq:
		return "jaq"
	case SqlAlias:
		return "sql_alias"
	case Invalid:
		return "invalid"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseError is the Parse phase failure.
type ParseError struct {
	Kind  ErrorKind
	Input string
	// Tried lists the syntaxes consulted, in priority order (NoMatchingSyntax).
	Tried []string
	// Errors holds one entry per problem found by the pgq parser.
	Errors []string
	// Message describes a jq, SQL-sugar or generic failure.
	Message string
}

func (e *ParseError) Error() string {
	switch e.Kind {
	case NoMatchingSyntax:
		return fmt.Sprintf("no syntax recognized query %q (tried: %s)", e.Input, strings.Join(e.Tried, ", "))
	case Pgq:
		return "pgq: " + strings.Join(e.Errors, "; ")
	case Jaq:
		return "jq: " + e.Message
	case SqlAlias:
		return "sql: " + e.Message
	}
	return "invalid query: " + e.Message
}

func pgqError(input string, err error) *ParseError {
	return &ParseError{Kind: Pgq, Input: input, Errors: []string{err.Error()}}
}

func jaqError(input string, err error) *ParseError {
	return &ParseError{Kind: Jaq, Input: input, Message: err.Error()}
}

func sqlError(input string, err error) *ParseError {
	return &ParseError{Kind: SqlAlias, Input: input, Message: err.Error()}
}
