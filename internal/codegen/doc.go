// Package codegen provides the integration-independent part of the firmware
// code generator: identifiers and the instance table, source expressions,
// generation units and the sensor binding mechanism.
//
// # Binding
//
// A sensor binding maps a declared sensor type to a registration method on
// a parent controller, then hands the sensor's publish_state to that method
// as a callback. The type -> method table is a closed TypeRegistry:
//
//	types := codegen.NewTypeRegistry("text_sensor", map[string]string{
//	    "battery": "register_battery",
//	})
//
//	unit := codegen.NewUnit("text_sensor[0]", "secplus_gdo[0]")
//	err := codegen.GenerateBinding(unit, scope, codegen.Binding{
//	    ID:          "batt1",
//	    Class:       textSensorClass,
//	    Type:        "battery",
//	    Registry:    types,
//	    ParentID:    "gdo1",
//	    ParentClass: controllerClass,
//	})
//
// # Errors
//
// Generation fails with *SchemaError, *ReferenceError or
// *IdentifierCollisionError. All are fatal to the pass: a Program is only
// rendered once every unit has been generated without error.
//
// # Determinism
//
// Nothing in this package iterates a map while producing output. Rendering
// the same units in the same order is byte-identical.
package codegen
