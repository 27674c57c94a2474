package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gdogen/internal/codegen"
)

// Error represents a structured error response.
type Error struct {
	Status   int       `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Problems []Problem `json:"problems,omitempty"`
}

// Problem is one generation error with its location in the device file.
type Problem struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line,omitempty"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeNotFound        = "not_found"
	ErrCodeInternal        = "internal_error"
	ErrCodeValidation      = "validation_error"
	ErrCodeRequestTooLarge = "request_too_large"
)

// Problem kinds.
const (
	KindSchema    = "schema"
	KindReference = "reference"
	KindCollision = "identifier_collision"
	KindOther     = "error"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeGenerationError maps a failed generation pass to a response.
// Schema, reference and collision errors are the caller's fault and come
// back as 422 with one problem per error; anything else the YAML decoder
// rejected is a 400.
func writeGenerationError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, "device file too large")
		return
	}

	if !errors.Is(err, codegen.ErrSchema) &&
		!errors.Is(err, codegen.ErrReference) &&
		!errors.Is(err, codegen.ErrIdentifierCollision) {
		writeBadRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusUnprocessableEntity, Error{
		Status:   http.StatusUnprocessableEntity,
		Code:     ErrCodeValidation,
		Message:  "device file is invalid",
		Problems: problemsFrom(err),
	})
}

// problemsFrom flattens a generation error into problems.
func problemsFrom(err error) []Problem {
	var list codegen.Errors
	if !errors.As(err, &list) {
		return []Problem{problemFrom(err)}
	}

	problems := make([]Problem, 0, len(list))
	for _, e := range list {
		problems = append(problems, problemFrom(e))
	}
	return problems
}

func problemFrom(err error) Problem {
	var (
		schemaErr    *codegen.SchemaError
		refErr       *codegen.ReferenceError
		collisionErr *codegen.IdentifierCollisionError
	)
	switch {
	case errors.As(err, &schemaErr):
		return Problem{Kind: KindSchema, Path: schemaErr.Path, Line: schemaErr.Line, Message: err.Error()}
	case errors.As(err, &refErr):
		return Problem{Kind: KindReference, Path: refErr.Path, Line: refErr.Line, Message: err.Error()}
	case errors.As(err, &collisionErr):
		return Problem{Kind: KindCollision, Path: collisionErr.Path, Line: collisionErr.Line, Message: err.Error()}
	default:
		return Problem{Kind: KindOther, Message: err.Error()}
	}
}
