package gdo

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gdogen/internal/codegen"
)

// Document is the secplus_gdo part of one YAML device file.
//
// A device file usually configures much more than this integration (wifi,
// api, other sensors). Only the secplus_gdo controller and the entity
// entries whose platform is secplus_gdo are decoded; everything else is left
// to the tools that own it.
type Document struct {
	// Source names the file the document was read from.
	Source string

	// Controller is the secplus_gdo block, nil when the file has none.
	Controller *ControllerConfig

	// Entries holds the secplus_gdo entity entries in file order.
	Entries []Entry

	// Skipped lists the paths of entity entries owned by other platforms.
	Skipped []string
}

// Entry is one entity declaration together with its platform and location.
type Entry struct {
	Platform *Platform
	Path     string // e.g. "text_sensor[0]"
	Line     int
	Config   SensorConfig
}

// ControllerConfig is the parent controller declaration.
type ControllerConfig struct {
	ID           codegen.ID `yaml:"id"`
	InputGDOPin  *Pin       `yaml:"input_gdo_pin"`
	OutputGDOPin *Pin       `yaml:"output_gdo_pin"`
	InputObstPin *Pin       `yaml:"input_obst_pin"`

	line int
}

// controllerKeys are the keys accepted in the secplus_gdo block.
var controllerKeys = map[string]struct{}{
	"id":             {},
	"input_gdo_pin":  {},
	"output_gdo_pin": {},
	"input_obst_pin": {},
}

// SensorConfig is one entity entry. Platform-specific fields are only
// accepted by the platform that declares them.
type SensorConfig struct {
	Platform          string     `yaml:"platform"`
	ID                codegen.ID `yaml:"id"`
	Name              string     `yaml:"name"`
	Icon              string     `yaml:"icon"`
	Internal          bool       `yaml:"internal"`
	DisabledByDefault bool       `yaml:"disabled_by_default"`
	EntityCategory    string     `yaml:"entity_category"`
	Type              string     `yaml:"type"`
	SecplusGDOID      codegen.ID `yaml:"secplus_gdo_id"`

	// binary_sensor
	DeviceClass string `yaml:"device_class"`

	// sensor
	UnitOfMeasurement string `yaml:"unit_of_measurement"`
	AccuracyDecimals  *int   `yaml:"accuracy_decimals"`
	StateClass        string `yaml:"state_class"`
}

// Pin is a GPIO number. In YAML it may be written as a number (16), a
// name ("GPIO16") or a mapping with a number key ({number: GPIO16}).
type Pin int

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *Pin) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		n, err := parsePin(node.Value)
		if err != nil {
			return &codegen.SchemaError{Value: node.Value, Reason: err.Error(), Line: node.Line}
		}
		*p = Pin(n)
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "number" {
				return p.UnmarshalYAML(node.Content[i+1])
			}
		}
		return &codegen.SchemaError{Reason: "pin mapping requires a number key", Line: node.Line}
	default:
		return &codegen.SchemaError{Reason: "pin must be a number, a GPIO name or a mapping", Line: node.Line}
	}
}

func parsePin(s string) (int, error) {
	v := strings.TrimSpace(s)
	if len(v) > 4 && strings.EqualFold(v[:4], "gpio") {
		v = v[4:]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("not a GPIO pin")
	}
	return n, nil
}

// LoadFile reads and decodes a device file.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening device file: %w", err)
	}
	defer f.Close()

	doc, err := Decode(f)
	if err != nil {
		return nil, err
	}
	doc.Source = path
	return doc, nil
}

// Decode reads a device file from r. Unknown keys inside the secplus_gdo
// block or a secplus_gdo entity entry are schema errors, as is a repeated
// secplus_gdo or platform section; all of them are reported together.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading device file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing device file: %w", err)
	}

	doc := &Document{}
	if root.Kind == 0 || len(root.Content) == 0 {
		return doc, nil
	}

	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, &codegen.SchemaError{Reason: "top level must be a mapping", Line: top.Line}
	}

	var errs codegen.Errors
	seen := make(map[string]int)
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, value := top.Content[i], top.Content[i+1]

		_, isPlatform := PlatformByKey(key.Value)
		if key.Value == ControllerKey || isPlatform {
			if first, dup := seen[key.Value]; dup {
				errs = append(errs, duplicateKey(key.Value, key, first))
				continue
			}
			seen[key.Value] = key.Line
		}

		if key.Value == ControllerKey {
			ctrl, ctrlErrs := decodeController(value)
			doc.Controller = ctrl
			errs = append(errs, ctrlErrs...)
			continue
		}

		platform, ok := PlatformByKey(key.Value)
		if !ok {
			continue
		}
		errs = append(errs, doc.decodeEntries(platform, value)...)
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Empty reports whether the document declares nothing for this integration.
func (d *Document) Empty() bool {
	return d.Controller == nil && len(d.Entries) == 0
}

func decodeController(node *yaml.Node) (*ControllerConfig, []error) {
	if node.Kind != yaml.MappingNode {
		return nil, []error{&codegen.SchemaError{Path: ControllerKey, Reason: "must be a mapping", Line: node.Line}}
	}

	errs := unknownKeys(node, ControllerKey, controllerKeys)

	ctrl := &ControllerConfig{line: node.Line}
	seen := make(map[string]int)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		path := ControllerKey + "." + key.Value

		if first, dup := seen[key.Value]; dup {
			errs = append(errs, duplicateKey(path, key, first))
			continue
		}
		seen[key.Value] = key.Line

		// Pins are decoded one by one so a bad value reports its own key.
		var target any
		switch key.Value {
		case "id":
			target = &ctrl.ID
		case "input_gdo_pin":
			target = &ctrl.InputGDOPin
		case "output_gdo_pin":
			target = &ctrl.OutputGDOPin
		case "input_obst_pin":
			target = &ctrl.InputObstPin
		default:
			continue
		}
		if err := value.Decode(target); err != nil {
			errs = append(errs, decodeError(path, value, err))
		}
	}
	return ctrl, errs
}

func duplicateKey(path string, key *yaml.Node, first int) error {
	return &codegen.SchemaError{
		Path:   path,
		Reason: fmt.Sprintf("duplicate key, first declared on line %d", first),
		Line:   key.Line,
	}
}

func (d *Document) decodeEntries(platform *Platform, node *yaml.Node) []error {
	if node.Kind != yaml.SequenceNode {
		return []error{&codegen.SchemaError{Path: platform.Key, Reason: "must be a list", Line: node.Line}}
	}

	var errs []error
	allowed := platform.allowedKeys()
	for i, item := range node.Content {
		path := fmt.Sprintf("%s[%d]", platform.Key, i)

		if item.Kind != yaml.MappingNode {
			errs = append(errs, &codegen.SchemaError{Path: path, Reason: "must be a mapping", Line: item.Line})
			continue
		}

		name, found := mappingValue(item, "platform")
		if !found || name == "" {
			errs = append(errs, &codegen.SchemaError{Path: path + ".platform", Reason: "platform is required", Line: item.Line})
			continue
		}
		if name != PlatformName {
			d.Skipped = append(d.Skipped, path)
			continue
		}

		errs = append(errs, unknownKeys(item, path, allowed)...)

		var cfg SensorConfig
		if err := item.Decode(&cfg); err != nil {
			errs = append(errs, decodeError(path, item, err))
			continue
		}
		d.Entries = append(d.Entries, Entry{Platform: platform, Path: path, Line: item.Line, Config: cfg})
	}
	return errs
}

// mappingValue returns the scalar value stored under key in a mapping node.
func mappingValue(node *yaml.Node, key string) (string, bool) {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1].Value, true
		}
	}
	return "", false
}

func unknownKeys(node *yaml.Node, path string, allowed map[string]struct{}) []error {
	var errs []error
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if _, ok := allowed[key.Value]; !ok {
			errs = append(errs, &codegen.SchemaError{
				Path:   path + "." + key.Value,
				Reason: "unknown key",
				Line:   key.Line,
			})
		}
	}
	return errs
}

// decodeError converts a yaml decoding failure into a schema error at path.
// Schema errors raised by field unmarshalers get the path filled in.
func decodeError(path string, node *yaml.Node, err error) error {
	var schemaErr *codegen.SchemaError
	if errors.As(err, &schemaErr) {
		if schemaErr.Path == "" {
			schemaErr.Path = path
		}
		return schemaErr
	}
	return &codegen.SchemaError{Path: path, Reason: err.Error(), Line: node.Line}
}
