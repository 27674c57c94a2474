package codegen

import (
	"fmt"
	"strconv"
	"strings"
)

// Class is a fully qualified class in the generated source.
type Class struct {
	Namespace string // e.g. "esphome::secplus_gdo"
	Name      string // e.g. "GDOTextSensor"
}

// NewClass builds a Class from a namespace and a name.
func NewClass(namespace, name string) Class {
	return Class{Namespace: namespace, Name: name}
}

func (c Class) String() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "::" + c.Name
}

// Member returns a pointer-to-member expression, e.g.
// &esphome::secplus_gdo::GDOTextSensor::publish_state.
func (c Class) Member(name string) Expression {
	return RawExpression("&" + c.String() + "::" + name)
}

// Expression is a fragment of generated source.
type Expression interface {
	Expr() string
}

// RawExpression is emitted verbatim.
type RawExpression string

func (r RawExpression) Expr() string { return string(r) }

// Expr lets an ID be used where an expression is expected.
func (id ID) Expr() string { return string(id) }

// StringLiteral is a C++ string literal.
type StringLiteral string

// Expr renders the literal with C++ escaping. Control characters without a
// short escape are written as octal escapes. Invalid UTF-8 is replaced by
// U+FFFD.
func (s StringLiteral) Expr() string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range string(s) {
		switch {
		case r == '"':
			b.WriteString(`\"`)
		case r == '\\':
			b.WriteString(`\\`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\%03o`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

// IntLiteral is a C++ integer literal.
type IntLiteral int64

func (i IntLiteral) Expr() string { return strconv.FormatInt(int64(i), 10) }

// BoolLiteral is a C++ boolean literal.
type BoolLiteral bool

func (v BoolLiteral) Expr() string {
	if v {
		return "true"
	}
	return "false"
}

// CallExpression is a method call through an instance pointer or an
// object, e.g. gdo1->register_battery(...) or App.register_component(...).
type CallExpression struct {
	Target   string
	Operator string // "->" for pointers, "." for objects
	Method   string
	Args     []Expression
}

func (c CallExpression) Expr() string {
	args := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		args = append(args, a.Expr())
	}
	return c.Target + c.Operator + c.Method + "(" + strings.Join(args, ", ") + ")"
}

// Call builds a method call through the pointer named by target.
func Call(target ID, method string, args ...Expression) CallExpression {
	return CallExpression{Target: string(target), Operator: "->", Method: method, Args: args}
}

// AppCall builds a call on the global application object.
func AppCall(method string, args ...Expression) CallExpression {
	return CallExpression{Target: "App", Operator: ".", Method: method, Args: args}
}

// BindExpression partially applies a member function to an instance,
// leaving one placeholder for the value the caller supplies:
// std::bind(&Class::member, instance, std::placeholders::_1).
type BindExpression struct {
	Class    Class
	Member   string
	Instance ID
}

func (b BindExpression) Expr() string {
	return "std::bind(" + b.Class.Member(b.Member).Expr() + ", " + string(b.Instance) + ", std::placeholders::_1)"
}

// AssignNew is id = new Class().
type AssignNew struct {
	ID    ID
	Class Class
}

func (a AssignNew) Expr() string {
	return string(a.ID) + " = new " + a.Class.String() + "()"
}
