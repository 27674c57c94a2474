package codegen

import (
	"errors"
	"strings"
	"testing"
)

var (
	testController = NewClass("esphome::secplus_gdo", "GDOComponent")
	testSensor     = NewClass("esphome::secplus_gdo", "GDOTextSensor")
	testTypes      = NewTypeRegistry("text_sensor", map[string]string{"battery": "register_battery"})
)

// newTestScope returns a scope with controller gdo1 declared.
func newTestScope(t *testing.T) *Scope {
	t.Helper()
	s := NewScope()
	if err := s.Declare("gdo1", testController, "secplus_gdo[0]"); err != nil {
		t.Fatalf("Declare(gdo1) error = %v", err)
	}
	return s
}

func testBinding(id ID, typ string, parent ID) Binding {
	return Binding{
		Path:        "text_sensor[0]",
		ID:          id,
		Class:       testSensor,
		Type:        typ,
		Registry:    testTypes,
		ParentID:    parent,
		ParentClass: testController,
		Entity:      []Expression{AppCall("register_text_sensor", id)},
	}
}

func TestGenerateBinding_Battery(t *testing.T) {
	s := newTestScope(t)
	u := NewUnit("text_sensor[0]")

	if err := GenerateBinding(u, s, testBinding("batt1", "battery", "gdo1")); err != nil {
		t.Fatalf("GenerateBinding() error = %v", err)
	}

	want := []string{
		"batt1 = new esphome::secplus_gdo::GDOTextSensor();",
		"App.register_text_sensor(batt1);",
		"App.register_component(batt1);",
		"gdo1->register_battery(std::bind(&esphome::secplus_gdo::GDOTextSensor::publish_state, batt1, std::placeholders::_1));",
	}
	got := u.Statements()
	if len(got) != len(want) {
		t.Fatalf("Statements() = %v, want %d statements", got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statement %d = %q, want %q", i, got[i], want[i])
		}
	}

	globals := u.Globals()
	if len(globals) != 1 || globals[0].ID != "batt1" || globals[0].Class != testSensor {
		t.Errorf("Globals() = %+v, want batt1 of %s", globals, testSensor)
	}
}

func TestGenerateBinding_ExactlyOneRegistration(t *testing.T) {
	s := newTestScope(t)
	u := NewUnit("text_sensor[0]")
	if err := GenerateBinding(u, s, testBinding("batt1", "battery", "gdo1")); err != nil {
		t.Fatalf("GenerateBinding() error = %v", err)
	}

	joined := strings.Join(u.Statements(), "\n")
	if n := strings.Count(joined, "register_battery("); n != 1 {
		t.Errorf("register_battery calls = %d, want 1", n)
	}
}

func TestGenerateBinding_Errors(t *testing.T) {
	tests := []struct {
		name    string
		binding Binding
		setup   func(*Scope)
		wantErr error
	}{
		{
			name:    "unknown type",
			binding: testBinding("batt2", "humidity", "gdo1"),
			wantErr: ErrSchema,
		},
		{
			name:    "missing parent",
			binding: testBinding("batt1", "battery", "gdo_missing"),
			wantErr: ErrReference,
		},
		{
			name:    "parent of wrong class",
			binding: testBinding("batt1", "battery", "other"),
			setup: func(s *Scope) {
				_ = s.Declare("other", testSensor, "text_sensor[9]")
			},
			wantErr: ErrReference,
		},
		{
			name:    "duplicate id",
			binding: testBinding("gdo1", "battery", "gdo1"),
			wantErr: ErrIdentifierCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScope(t)
			if tt.setup != nil {
				tt.setup(s)
			}
			u := NewUnit("text_sensor[0]")

			err := GenerateBinding(u, s, tt.binding)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GenerateBinding() error = %v, want %v", err, tt.wantErr)
			}
			if n := len(u.Statements()); n != 0 {
				t.Errorf("failed binding emitted %d statements, want 0", n)
			}
			if n := len(u.Globals()); n != 0 {
				t.Errorf("failed binding declared %d globals, want 0", n)
			}
		})
	}
}

func TestGenerateBinding_SchemaErrorCarriesValue(t *testing.T) {
	s := newTestScope(t)
	err := GenerateBinding(NewUnit("text_sensor[0]"), s, testBinding("batt2", "humidity", "gdo1"))

	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("error = %v, want *SchemaError", err)
	}
	if schemaErr.Value != "humidity" {
		t.Errorf("Value = %q, want humidity", schemaErr.Value)
	}
	if len(schemaErr.Accepted) != 1 || schemaErr.Accepted[0] != "battery" {
		t.Errorf("Accepted = %v, want [battery]", schemaErr.Accepted)
	}
	if !strings.Contains(err.Error(), `"humidity"`) || !strings.Contains(err.Error(), "battery") {
		t.Errorf("Error() = %q, want offending value and accepted set", err.Error())
	}
}

func TestGenerateBinding_ReferenceErrorPath(t *testing.T) {
	s := newTestScope(t)

	b := testBinding("batt1", "battery", "gdo_missing")
	err := GenerateBinding(NewUnit("text_sensor[0]"), s, b)
	var refErr *ReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("GenerateBinding() error = %v, want *ReferenceError", err)
	}
	if refErr.Path != "text_sensor[0]" {
		t.Errorf("Path = %q, want entry path when ParentPath is empty", refErr.Path)
	}

	b.ParentPath = "text_sensor[0].secplus_gdo_id"
	err = GenerateBinding(NewUnit("text_sensor[0]"), s, b)
	if !errors.As(err, &refErr) || refErr.Path != "text_sensor[0].secplus_gdo_id" {
		t.Errorf("GenerateBinding() error = %v, want path text_sensor[0].secplus_gdo_id", err)
	}
}

func TestTypeRegistry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "exact", input: "battery", want: "battery"},
		{name: "upper case", input: "BATTERY", want: "battery"},
		{name: "padded", input: " Battery ", want: "battery"},
		{name: "unknown", input: "humidity", wantErr: ErrSchema},
		{name: "empty", input: "", wantErr: ErrSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := testTypes.Validate(tt.input, "text_sensor[0].type")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Validate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTypeRegistry_KeysSortedAndCopied(t *testing.T) {
	r := NewTypeRegistry("binary_sensor", map[string]string{
		"motor":  "register_motor",
		"Motion": "register_motion",
		"button": "register_button",
	})

	keys := r.Keys()
	want := []string{"button", "motion", "motor"}
	if strings.Join(keys, ",") != strings.Join(want, ",") {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}

	keys[0] = "mutated"
	if r.Keys()[0] != "button" {
		t.Error("Keys() exposes internal slice")
	}

	if m, ok := r.Lookup("motion"); !ok || m != "register_motion" {
		t.Errorf("Lookup(motion) = %q, %v", m, ok)
	}
	if r.Name() != "binary_sensor" {
		t.Errorf("Name() = %q, want binary_sensor", r.Name())
	}
}
