package codegen

import (
	"sort"
	"strings"
)

// PublishState is the sensor-side operation that notifies the entity
// framework of a new value.
const PublishState = "publish_state"

// TypeRegistry maps a symbolic sensor type to the registration method the
// parent controller exposes for it. The set is closed: it is fixed when the
// registry is built and never extended afterwards.
type TypeRegistry struct {
	name    string
	methods map[string]string
	keys    []string
}

// NewTypeRegistry builds a registry from a type -> method table. Keys are
// stored lower-cased. The table is copied.
func NewTypeRegistry(name string, types map[string]string) *TypeRegistry {
	r := &TypeRegistry{
		name:    name,
		methods: make(map[string]string, len(types)),
		keys:    make([]string, 0, len(types)),
	}
	for k, m := range types {
		k = strings.ToLower(k)
		r.methods[k] = m
		r.keys = append(r.keys, k)
	}
	sort.Strings(r.keys)
	return r
}

// Name identifies the registry, usually after its platform.
func (r *TypeRegistry) Name() string { return r.name }

// Lookup returns the registration method for a type key.
func (r *TypeRegistry) Lookup(key string) (string, bool) {
	m, ok := r.methods[key]
	return m, ok
}

// Keys returns the accepted type keys in sorted order.
func (r *TypeRegistry) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Validate normalises value to lower case and checks it against the
// registry. Unknown values fail with *SchemaError listing the accepted set.
func (r *TypeRegistry) Validate(value, path string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(value))
	if key == "" {
		return "", &SchemaError{Path: path, Reason: "type is required"}
	}
	if _, ok := r.methods[key]; !ok {
		return "", &SchemaError{Path: path, Value: value, Accepted: r.Keys()}
	}
	return key, nil
}

// Binding describes one sensor whose publish operation is registered as a
// callback on a parent controller.
type Binding struct {
	Path     string        // YAML path of the declaring entry
	ID       ID            // New sensor instance
	Class    Class         // Sensor class
	Type     string        // Key into Registry
	Registry *TypeRegistry // Closed type -> registration method table

	ParentID    ID     // Controller the sensor binds to
	ParentClass Class  // Expected controller class
	ParentPath  string // YAML path of the parent reference, defaults to Path

	// Entity holds the statements registering the instance with the
	// generic entity subsystem, e.g. App.register_text_sensor(id).
	Entity []Expression
}

// GenerateBinding emits the code for one sensor binding into u:
//
//	batt1 = new esphome::secplus_gdo::GDOTextSensor();
//	App.register_text_sensor(batt1);
//	App.register_component(batt1);
//	gdo1->register_battery(std::bind(&esphome::secplus_gdo::GDOTextSensor::publish_state, batt1, std::placeholders::_1));
//
// Every check runs before the first statement is added, so a failed
// binding leaves u untouched.
func GenerateBinding(u *Unit, s *Scope, b Binding) error {
	method, ok := b.Registry.Lookup(b.Type)
	if !ok {
		return &SchemaError{Path: b.Path + ".type", Value: b.Type, Accepted: b.Registry.Keys()}
	}

	parentPath := b.ParentPath
	if parentPath == "" {
		parentPath = b.Path
	}
	if _, err := s.ResolveClass(b.ParentID, b.ParentClass, parentPath); err != nil {
		return err
	}

	if err := s.Declare(b.ID, b.Class, b.Path); err != nil {
		return err
	}
	decl, _ := s.Resolve(b.ID, b.Path)

	u.AddGlobal(decl)
	u.Add(AssignNew{ID: b.ID, Class: b.Class})
	for _, e := range b.Entity {
		u.Add(e)
	}
	u.Add(AppCall("register_component", b.ID))
	u.Add(Call(b.ParentID, method, BindExpression{Class: b.Class, Member: PublishState, Instance: b.ID}))
	return nil
}
