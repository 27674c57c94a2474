package gdo

import (
	"fmt"
	"sort"

	"github.com/nerrad567/gdogen/internal/codegen"
)

// maxPin is the highest GPIO number on the supported ESP32 variants.
const maxPin = 48

var (
	validEntityCategories = []string{"config", "diagnostic"}

	validBinaryDeviceClasses = []string{
		"battery", "battery_charging", "carbon_monoxide", "cold", "connectivity",
		"door", "garage_door", "gas", "heat", "light", "lock", "moisture",
		"motion", "moving", "occupancy", "opening", "plug", "power", "presence",
		"problem", "running", "safety", "smoke", "sound", "tamper", "update",
		"vibration", "window",
	}

	validStateClasses = []string{"measurement", "total", "total_increasing"}
)

// Validate checks the document against the schema before any code is
// emitted. Type values are normalised to their registry keys. Every
// problem is reported; the returned error is a codegen.Errors.
func (d *Document) Validate() error {
	var errs codegen.Errors

	if d.Controller != nil {
		errs = append(errs, d.Controller.validate()...)
	}

	for i := range d.Entries {
		errs = append(errs, d.Entries[i].validate()...)
	}

	return errs.ErrOrNil()
}

func (c *ControllerConfig) validate() []error {
	var errs []error

	if c.ID != "" {
		if err := codegen.ValidateID(c.ID, ControllerKey+".id"); err != nil {
			errs = append(errs, withLine(err, c.line))
		}
	}

	pins := []struct {
		key      string
		pin      *Pin
		required bool
	}{
		{key: "input_gdo_pin", pin: c.InputGDOPin, required: true},
		{key: "output_gdo_pin", pin: c.OutputGDOPin, required: true},
		{key: "input_obst_pin", pin: c.InputObstPin},
	}

	used := make(map[Pin]string)
	for _, p := range pins {
		path := ControllerKey + "." + p.key
		if p.pin == nil {
			if p.required {
				errs = append(errs, &codegen.SchemaError{Path: path, Reason: "is required", Line: c.line})
			}
			continue
		}
		if *p.pin < 0 || *p.pin > maxPin {
			errs = append(errs, &codegen.SchemaError{
				Path:   path,
				Value:  fmt.Sprint(int(*p.pin)),
				Reason: fmt.Sprintf("must be between 0 and %d", maxPin),
				Line:   c.line,
			})
			continue
		}
		if other, dup := used[*p.pin]; dup {
			errs = append(errs, &codegen.SchemaError{
				Path:   path,
				Value:  fmt.Sprint(int(*p.pin)),
				Reason: "pin is already used by " + other,
				Line:   c.line,
			})
			continue
		}
		used[*p.pin] = p.key
	}

	return errs
}

func (e *Entry) validate() []error {
	var errs []error
	cfg := &e.Config

	if cfg.ID != "" {
		if err := codegen.ValidateID(cfg.ID, e.Path+".id"); err != nil {
			errs = append(errs, withLine(err, e.Line))
		}
	}
	if cfg.SecplusGDOID != "" {
		if err := codegen.ValidateID(cfg.SecplusGDOID, e.Path+".secplus_gdo_id"); err != nil {
			errs = append(errs, withLine(err, e.Line))
		}
	}

	key, err := e.Platform.Types.Validate(cfg.Type, e.Path+".type")
	if err != nil {
		errs = append(errs, withLine(err, e.Line))
	} else {
		cfg.Type = key
	}

	if cfg.EntityCategory != "" {
		if err := oneOf(cfg.EntityCategory, validEntityCategories, e.Path+".entity_category"); err != nil {
			errs = append(errs, withLine(err, e.Line))
		}
	}

	if e.Platform.validate != nil {
		for _, err := range e.Platform.validate(cfg, e.Path) {
			errs = append(errs, withLine(err, e.Line))
		}
	}

	return errs
}

func validateBinarySensor(cfg *SensorConfig, path string) []error {
	if cfg.DeviceClass == "" {
		return nil
	}
	if err := oneOf(cfg.DeviceClass, validBinaryDeviceClasses, path+".device_class"); err != nil {
		return []error{err}
	}
	return nil
}

func validateSensor(cfg *SensorConfig, path string) []error {
	var errs []error
	if cfg.AccuracyDecimals != nil && *cfg.AccuracyDecimals < 0 {
		errs = append(errs, &codegen.SchemaError{
			Path:   path + ".accuracy_decimals",
			Value:  fmt.Sprint(*cfg.AccuracyDecimals),
			Reason: "must not be negative",
		})
	}
	if cfg.StateClass != "" {
		if err := oneOf(cfg.StateClass, validStateClasses, path+".state_class"); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// oneOf checks value against a closed set.
func oneOf(value string, accepted []string, path string) error {
	for _, a := range accepted {
		if value == a {
			return nil
		}
	}
	sorted := append([]string(nil), accepted...)
	sort.Strings(sorted)
	return &codegen.SchemaError{Path: path, Value: value, Accepted: sorted}
}

// withLine stamps err with the line of the declaring entry when it has none.
func withLine(err error, line int) error {
	codegen.SetLine(err, line)
	return err
}
