package codegen

import (
	"errors"
	"fmt"
	"strings"
)

// Generation errors. Every one of them is fatal to the generation pass.
//
// The typed errors below unwrap to these sentinels, so callers can use
// errors.Is for classification and errors.As for detail:
//
//	if errors.Is(err, codegen.ErrSchema) {
//	    // invalid configuration value
//	}
var (
	// ErrSchema is returned when a configuration value violates the schema.
	ErrSchema = errors.New("codegen: schema violation")

	// ErrReference is returned when an ID does not resolve to a declared instance.
	ErrReference = errors.New("codegen: unresolved reference")

	// ErrIdentifierCollision is returned when an ID is declared twice.
	ErrIdentifierCollision = errors.New("codegen: identifier collision")

	// ErrUnit is returned when a generation unit cannot join a program:
	// duplicate unit name, unmet dependency or conflicting define.
	ErrUnit = errors.New("codegen: invalid generation unit")
)

// SchemaError describes a configuration value rejected by validation.
type SchemaError struct {
	Path     string   // YAML path of the offending key, e.g. "text_sensor[0].type"
	Value    string   // Offending value as written by the user
	Accepted []string // Accepted values, for enum violations
	Reason   string   // Free-form description when Accepted is empty
	Line     int      // Line in the source file, 0 when unknown
}

func (e *SchemaError) Error() string {
	return withLine(e.message(), e.Line)
}

func (e *SchemaError) message() string {
	var b strings.Builder
	b.WriteString(ErrSchema.Error())
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if len(e.Accepted) > 0 {
		fmt.Fprintf(&b, ": unknown value %q, must be one of %s", e.Value, strings.Join(e.Accepted, ", "))
		return b.String()
	}
	if e.Value != "" {
		fmt.Fprintf(&b, ": %q", e.Value)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

// ReferenceError describes an ID that does not resolve in the scope.
type ReferenceError struct {
	Path   string
	ID     ID
	Reason string // Defaults to "is not declared"
	Line   int
}

func (e *ReferenceError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "is not declared"
	}
	var msg string
	if e.Path == "" {
		msg = fmt.Sprintf("%s: %q %s", ErrReference, e.ID, reason)
	} else {
		msg = fmt.Sprintf("%s: %s: %q %s", ErrReference, e.Path, e.ID, reason)
	}
	return withLine(msg, e.Line)
}

func (e *ReferenceError) Unwrap() error { return ErrReference }

// IdentifierCollisionError describes a second declaration of an ID.
type IdentifierCollisionError struct {
	ID    ID
	First string // Path of the original declaration
	Path  string // Path of the colliding declaration
	Line  int
}

func (e *IdentifierCollisionError) Error() string {
	return withLine(fmt.Sprintf("%s: %s: %q already declared at %s", ErrIdentifierCollision, e.Path, e.ID, e.First), e.Line)
}

// SetLine records line on a generation error that has none.
// Other errors are left alone.
func SetLine(err error, line int) {
	var (
		schemaErr    *SchemaError
		refErr       *ReferenceError
		collisionErr *IdentifierCollisionError
	)
	switch {
	case errors.As(err, &schemaErr):
		if schemaErr.Line == 0 {
			schemaErr.Line = line
		}
	case errors.As(err, &refErr):
		if refErr.Line == 0 {
			refErr.Line = line
		}
	case errors.As(err, &collisionErr):
		if collisionErr.Line == 0 {
			collisionErr.Line = line
		}
	}
}

func withLine(msg string, line int) string {
	if line > 0 {
		return fmt.Sprintf("%s (line %d)", msg, line)
	}
	return msg
}

func (e *IdentifierCollisionError) Unwrap() error { return ErrIdentifierCollision }

// Errors collects several schema problems found in one validation pass.
// It unwraps to each of them, so errors.Is and errors.As see every entry.
type Errors []error

func (e Errors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

func (e Errors) Unwrap() []error { return e }

// ErrOrNil returns nil for an empty collection.
func (e Errors) ErrOrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}
