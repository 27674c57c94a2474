package codegen

import (
	"fmt"
	"regexp"
	"strings"
)

// ID is an identifier in the generated source. It names a global pointer
// to one declared instance.
type ID string

func (id ID) String() string { return string(id) }

var idRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedIDs cannot be used as instance identifiers: C++ keywords and the
// names the generated setup code already uses.
var reservedIDs = map[string]struct{}{
	"alignas": {}, "alignof": {}, "and": {}, "asm": {}, "auto": {}, "bool": {},
	"break": {}, "case": {}, "catch": {}, "char": {}, "class": {}, "const": {},
	"constexpr": {}, "continue": {}, "default": {}, "delete": {}, "do": {},
	"double": {}, "else": {}, "enum": {}, "explicit": {}, "extern": {},
	"false": {}, "float": {}, "for": {}, "friend": {}, "goto": {}, "if": {},
	"inline": {}, "int": {}, "long": {}, "mutable": {}, "namespace": {},
	"new": {}, "noexcept": {}, "not": {}, "nullptr": {}, "operator": {},
	"or": {}, "private": {}, "protected": {}, "public": {}, "register": {},
	"return": {}, "short": {}, "signed": {}, "sizeof": {}, "static": {},
	"struct": {}, "switch": {}, "template": {}, "this": {}, "throw": {},
	"true": {}, "try": {}, "typedef": {}, "typename": {}, "union": {},
	"unsigned": {}, "using": {}, "virtual": {}, "void": {}, "volatile": {},
	"while": {}, "xor": {},
	"App": {}, "esphome": {}, "std": {}, "setup": {}, "loop": {},
}

// ValidateID checks that id can be used as a global identifier.
// Violations are reported as *SchemaError against path.
func ValidateID(id ID, path string) error {
	if id == "" {
		return &SchemaError{Path: path, Reason: "identifier is required"}
	}
	if !idRegex.MatchString(string(id)) {
		return &SchemaError{Path: path, Value: string(id), Reason: "must start with a letter or underscore and contain only letters, digits and underscores"}
	}
	if _, ok := reservedIDs[string(id)]; ok {
		return &SchemaError{Path: path, Value: string(id), Reason: "is a reserved word"}
	}
	if strings.HasPrefix(string(id), "__") {
		return &SchemaError{Path: path, Value: string(id), Reason: "identifiers starting with a double underscore are reserved"}
	}
	return nil
}

// Declaration is one entry of the instance table.
type Declaration struct {
	ID    ID
	Class Class
	Path  string // YAML path of the declaring entry
}

// Scope is the instance table of one generation pass.
//
// IDs go through two steps. Claim (or Allocate) reserves the name for the
// entry at a given path, before any code is generated, so that automatic
// IDs never take a name the user wrote further down the file. Declare then
// binds the claimed name to a class once the entry's code is emitted, after
// which Resolve finds it.
//
// A Scope is not safe for concurrent use; a generation pass is sequential.
type Scope struct {
	claims   map[ID]string
	declared map[ID]Declaration
}

// NewScope creates an empty instance table.
func NewScope() *Scope {
	return &Scope{
		claims:   make(map[ID]string),
		declared: make(map[ID]Declaration),
	}
}

// Claim reserves id for the entry at path.
// Returns *IdentifierCollisionError when another entry already holds it.
func (s *Scope) Claim(id ID, path string) error {
	if first, ok := s.claims[id]; ok && first != path {
		return &IdentifierCollisionError{ID: id, First: first, Path: path}
	}
	s.claims[id] = path
	return nil
}

// Allocate claims a fresh automatic ID for the entry at path. The first
// candidate is base itself, then base_2, base_3 and so on.
func (s *Scope) Allocate(base, path string) ID {
	candidate := ID(base)
	for n := 2; ; n++ {
		if _, taken := s.claims[candidate]; !taken {
			s.claims[candidate] = path
			return candidate
		}
		candidate = ID(fmt.Sprintf("%s_%d", base, n))
	}
}

// Declare binds id to class. The ID must be unclaimed or claimed by the
// same path.
func (s *Scope) Declare(id ID, class Class, path string) error {
	if d, ok := s.declared[id]; ok {
		return &IdentifierCollisionError{ID: id, First: d.Path, Path: path}
	}
	if err := s.Claim(id, path); err != nil {
		return err
	}
	s.declared[id] = Declaration{ID: id, Class: class, Path: path}
	return nil
}

// Resolve looks up a declared instance. path locates the referencing key
// for error reporting.
func (s *Scope) Resolve(id ID, path string) (Declaration, error) {
	d, ok := s.declared[id]
	if !ok {
		return Declaration{}, &ReferenceError{Path: path, ID: id}
	}
	return d, nil
}

// ResolveClass looks up a declared instance and checks that it is of the
// expected class.
func (s *Scope) ResolveClass(id ID, class Class, path string) (Declaration, error) {
	d, err := s.Resolve(id, path)
	if err != nil {
		return Declaration{}, err
	}
	if d.Class != class {
		return Declaration{}, &ReferenceError{
			Path:   path,
			ID:     id,
			Reason: fmt.Sprintf("is a %s, not a %s", d.Class, class),
		}
	}
	return d, nil
}

// Declared reports the number of declared instances.
func (s *Scope) Declared() int {
	return len(s.declared)
}
