package codegen

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// GeneratedHeader opens every rendered program.
const GeneratedHeader = "// Code generated by gdogen. DO NOT EDIT."

// Define is a preprocessor definition. A nil Value renders a bare #define.
type Define struct {
	Name  string
	Value Expression
}

func (d Define) line() string {
	if d.Value == nil {
		return "#define " + d.Name
	}
	return "#define " + d.Name + " " + d.Value.Expr()
}

// Unit is the generation unit for one declared configuration entry.
// It is append-only: statements are rendered in the order they were added.
type Unit struct {
	Name      string   // e.g. "text_sensor[0]"
	DependsOn []string // Names of units that must be generated first

	includes   []string
	defines    []Define
	globals    []Declaration
	statements []Expression
}

// NewUnit creates an empty unit.
func NewUnit(name string, dependsOn ...string) *Unit {
	return &Unit{Name: name, DependsOn: dependsOn}
}

// AddInclude records a header the unit needs.
func (u *Unit) AddInclude(path string) {
	u.includes = append(u.includes, path)
}

// AddDefine records a preprocessor definition.
func (u *Unit) AddDefine(name string, value Expression) {
	u.defines = append(u.defines, Define{Name: name, Value: value})
}

// AddGlobal records a global pointer declaration for d.
func (u *Unit) AddGlobal(d Declaration) {
	u.globals = append(u.globals, d)
}

// Add appends a statement to the setup body.
func (u *Unit) Add(expr Expression) {
	u.statements = append(u.statements, expr)
}

// Statements returns the rendered setup statements, each terminated by a semicolon.
func (u *Unit) Statements() []string {
	out := make([]string, 0, len(u.statements))
	for _, s := range u.statements {
		out = append(out, s.Expr()+";")
	}
	return out
}

// Globals returns the instances the unit declares.
func (u *Unit) Globals() []Declaration {
	return append([]Declaration(nil), u.globals...)
}

// Program is the ordered set of units rendered into one source file.
type Program struct {
	Function string // Name of the generated setup function
	Source   string // Optional source file noted in the header

	units   []*Unit
	names   map[string]struct{}
	defines map[string]Define
}

// NewProgram creates an empty program whose setup code lives in function.
func NewProgram(function string) *Program {
	return &Program{
		Function: function,
		names:    make(map[string]struct{}),
		defines:  make(map[string]Define),
	}
}

// Append adds u to the program. Every unit u depends on must already be
// part of the program; the host build orders units so that a controller
// is generated before the sensors bound to it.
func (p *Program) Append(u *Unit) error {
	if _, dup := p.names[u.Name]; dup {
		return fmt.Errorf("%w: unit %q generated twice", ErrUnit, u.Name)
	}
	for _, dep := range u.DependsOn {
		if _, ok := p.names[dep]; !ok {
			return fmt.Errorf("%w: unit %q depends on %q which has not been generated", ErrUnit, u.Name, dep)
		}
	}
	for _, d := range u.defines {
		if prev, ok := p.defines[d.Name]; ok && prev.line() != d.line() {
			return fmt.Errorf("%w: unit %q redefines %s", ErrUnit, u.Name, d.Name)
		}
	}

	for _, d := range u.defines {
		p.defines[d.Name] = d
	}
	p.names[u.Name] = struct{}{}
	p.units = append(p.units, u)
	return nil
}

// Units returns the units in generation order.
func (p *Program) Units() []*Unit {
	return append([]*Unit(nil), p.units...)
}

// Render produces the source file. Output depends only on the units and
// their order, so rendering an unchanged program is byte-identical.
func (p *Program) Render() string {
	var b strings.Builder

	b.WriteString(GeneratedHeader)
	b.WriteByte('\n')
	if p.Source != "" {
		fmt.Fprintf(&b, "// Source: %s\n", commentText(p.Source))
	}

	seenInclude := make(map[string]struct{})
	seenDefine := make(map[string]struct{})
	var includes, defines []string
	for _, u := range p.units {
		for _, inc := range u.includes {
			if _, ok := seenInclude[inc]; !ok {
				seenInclude[inc] = struct{}{}
				includes = append(includes, "#include \""+inc+"\"")
			}
		}
		for _, d := range u.defines {
			if _, ok := seenDefine[d.Name]; !ok {
				seenDefine[d.Name] = struct{}{}
				defines = append(defines, d.line())
			}
		}
	}
	writeBlock(&b, includes)
	writeBlock(&b, defines)

	var globals []string
	for _, u := range p.units {
		for _, g := range u.globals {
			globals = append(globals, g.Class.String()+" *"+string(g.ID)+";")
		}
	}
	writeBlock(&b, globals)

	fmt.Fprintf(&b, "\nvoid %s() {\n", p.Function)
	for i, u := range p.units {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "  // %s\n", u.Name)
		for _, s := range u.Statements() {
			b.WriteString("  ")
			b.WriteString(s)
			b.WriteByte('\n')
		}
	}
	b.WriteString("}\n")

	return b.String()
}

// commentText keeps s on a single comment line. Text containing control
// characters is quoted so a newline cannot end the comment.
func commentText(s string) string {
	if strings.IndexFunc(s, unicode.IsControl) < 0 {
		return s
	}
	return strconv.Quote(s)
}

func writeBlock(b *strings.Builder, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteByte('\n')
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
}
