package gdo

import (
	"strings"

	"github.com/nerrad567/gdogen/internal/codegen"
)

// Namespace is the C++ namespace of the integration's classes.
const Namespace = "esphome::secplus_gdo"

// PlatformName is the value entity entries use to select this integration.
const PlatformName = "secplus_gdo"

// ControllerKey is the top-level key of the controller configuration.
const ControllerKey = "secplus_gdo"

// Header is included by every unit this integration generates.
const Header = "esphome/components/secplus_gdo/secplus_gdo.h"

// ControllerClass is the parent controller that owns the sensors.
var ControllerClass = codegen.NewClass(Namespace, "GDOComponent")

// Platform is one entity platform of the integration: its class, the closed
// registry of sensor types it accepts and how instances are registered with
// the entity subsystem.
type Platform struct {
	Key      string                // Top-level key, e.g. "text_sensor"
	Class    codegen.Class         // Sensor class
	Types    *codegen.TypeRegistry // type -> controller registration method
	Register string                // Entity subsystem registration, e.g. "register_text_sensor"
	Value    string                // C++ type of the published value, for documentation

	extraKeys []string
	validate  func(cfg *SensorConfig, path string) []error
	setters   func(id codegen.ID, cfg *SensorConfig) []codegen.Expression
}

// AutoIDBase is the stem of automatically allocated IDs for the platform.
func (p *Platform) AutoIDBase() string {
	return PlatformName + "_" + strings.ToLower(p.Class.Name) + "_id"
}

// TextSensor publishes the opener's battery state as a string.
var TextSensor = &Platform{
	Key:   "text_sensor",
	Class: codegen.NewClass(Namespace, "GDOTextSensor"),
	Types: codegen.NewTypeRegistry("text_sensor", map[string]string{
		"battery": "register_battery",
	}),
	Register: "register_text_sensor",
	Value:    "std::string",
}

// BinarySensor publishes on/off states reported by the opener.
var BinarySensor = &Platform{
	Key:   "binary_sensor",
	Class: codegen.NewClass(Namespace, "GDOBinarySensor"),
	Types: codegen.NewTypeRegistry("binary_sensor", map[string]string{
		"motion":          "register_motion",
		"obstruction":     "register_obstruction",
		"motor":           "register_motor",
		"button":          "register_button",
		"sync":            "register_sync",
		"wireless_remote": "register_wireless_remote",
	}),
	Register:  "register_binary_sensor",
	Value:     "bool",
	extraKeys: []string{"device_class"},
	validate:  validateBinarySensor,
	setters:   binarySensorSetters,
}

// Sensor publishes numeric counters reported by the opener.
var Sensor = &Platform{
	Key:   "sensor",
	Class: codegen.NewClass(Namespace, "GDOStat"),
	Types: codegen.NewTypeRegistry("sensor", map[string]string{
		"openings": "register_openings",
	}),
	Register:  "register_sensor",
	Value:     "uint16_t",
	extraKeys: []string{"unit_of_measurement", "accuracy_decimals", "state_class"},
	validate:  validateSensor,
	setters:   sensorSetters,
}

// Platforms lists every platform in generation order.
func Platforms() []*Platform {
	return []*Platform{TextSensor, BinarySensor, Sensor}
}

// PlatformByKey returns the platform registered under a top-level key.
func PlatformByKey(key string) (*Platform, bool) {
	for _, p := range Platforms() {
		if p.Key == key {
			return p, true
		}
	}
	return nil, false
}

// commonKeys are accepted by every entity platform.
var commonKeys = []string{
	"platform", "id", "name", "icon", "internal", "disabled_by_default",
	"entity_category", "type", "secplus_gdo_id",
}

// allowedKeys returns the keys an entry of this platform may use.
func (p *Platform) allowedKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(commonKeys)+len(p.extraKeys))
	for _, k := range commonKeys {
		keys[k] = struct{}{}
	}
	for _, k := range p.extraKeys {
		keys[k] = struct{}{}
	}
	return keys
}

// entityStatements registers id with the entity subsystem and applies the
// configured entity attributes.
func (p *Platform) entityStatements(id codegen.ID, cfg *SensorConfig) []codegen.Expression {
	out := []codegen.Expression{codegen.AppCall(p.Register, id)}

	if cfg.Name != "" {
		out = append(out, codegen.Call(id, "set_name", codegen.StringLiteral(cfg.Name)))
	}
	if cfg.Icon != "" {
		out = append(out, codegen.Call(id, "set_icon", codegen.StringLiteral(cfg.Icon)))
	}
	if cfg.Internal {
		out = append(out, codegen.Call(id, "set_internal", codegen.BoolLiteral(true)))
	}
	if cfg.DisabledByDefault {
		out = append(out, codegen.Call(id, "set_disabled_by_default", codegen.BoolLiteral(true)))
	}
	if cfg.EntityCategory != "" {
		category := "esphome::ENTITY_CATEGORY_" + strings.ToUpper(cfg.EntityCategory)
		out = append(out, codegen.Call(id, "set_entity_category", codegen.RawExpression(category)))
	}
	if p.setters != nil {
		out = append(out, p.setters(id, cfg)...)
	}
	return out
}

func binarySensorSetters(id codegen.ID, cfg *SensorConfig) []codegen.Expression {
	if cfg.DeviceClass == "" {
		return nil
	}
	return []codegen.Expression{codegen.Call(id, "set_device_class", codegen.StringLiteral(cfg.DeviceClass))}
}

func sensorSetters(id codegen.ID, cfg *SensorConfig) []codegen.Expression {
	var out []codegen.Expression
	if cfg.UnitOfMeasurement != "" {
		out = append(out, codegen.Call(id, "set_unit_of_measurement", codegen.StringLiteral(cfg.UnitOfMeasurement)))
	}
	if cfg.AccuracyDecimals != nil {
		out = append(out, codegen.Call(id, "set_accuracy_decimals", codegen.IntLiteral(*cfg.AccuracyDecimals)))
	}
	if cfg.StateClass != "" {
		class := "esphome::sensor::STATE_CLASS_" + strings.ToUpper(cfg.StateClass)
		out = append(out, codegen.Call(id, "set_state_class", codegen.RawExpression(class)))
	}
	return out
}
