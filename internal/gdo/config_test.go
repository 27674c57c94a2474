package gdo

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/gdogen/internal/codegen"
)

func TestDecode_Document(t *testing.T) {
	doc := mustDecode(t, `
secplus_gdo:
  id: gdo1
  input_gdo_pin:
    number: GPIO16
    inverted: false
  output_gdo_pin: gpio17
  input_obst_pin: 18

binary_sensor:
  - platform: secplus_gdo
    id: motion
    type: motion
    device_class: motion
  - platform: gpio
    pin: GPIO4
    name: "Button"

sensor:
  - platform: secplus_gdo
    id: openings
    type: openings
    accuracy_decimals: 0
`)

	if doc.Controller == nil {
		t.Fatal("Controller = nil")
	}
	if doc.Controller.ID != "gdo1" {
		t.Errorf("Controller.ID = %q, want gdo1", doc.Controller.ID)
	}
	if *doc.Controller.InputGDOPin != 16 || *doc.Controller.OutputGDOPin != 17 || *doc.Controller.InputObstPin != 18 {
		t.Errorf("pins = %d/%d/%d, want 16/17/18",
			*doc.Controller.InputGDOPin, *doc.Controller.OutputGDOPin, *doc.Controller.InputObstPin)
	}

	if len(doc.Entries) != 2 {
		t.Fatalf("Entries = %d, want 2", len(doc.Entries))
	}
	if doc.Entries[0].Platform != BinarySensor || doc.Entries[0].Path != "binary_sensor[0]" {
		t.Errorf("Entries[0] = %s %s", doc.Entries[0].Platform.Key, doc.Entries[0].Path)
	}
	if doc.Entries[1].Config.AccuracyDecimals == nil || *doc.Entries[1].Config.AccuracyDecimals != 0 {
		t.Errorf("AccuracyDecimals = %v, want 0", doc.Entries[1].Config.AccuracyDecimals)
	}
	if doc.Entries[0].Line == 0 {
		t.Error("Entries[0].Line not recorded")
	}

	if len(doc.Skipped) != 1 || doc.Skipped[0] != "binary_sensor[1]" {
		t.Errorf("Skipped = %v, want [binary_sensor[1]]", doc.Skipped)
	}
}

func TestDecode_Empty(t *testing.T) {
	for _, src := range []string{"", "esphome:\n  name: porch\n"} {
		doc := mustDecode(t, src)
		if !doc.Empty() {
			t.Errorf("Decode(%q).Empty() = false, want true", src)
		}
	}
}

func TestDecode_SchemaErrors(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		wantPath string
	}{
		{
			name:     "unknown sensor key",
			yaml:     "text_sensor:\n  - {platform: secplus_gdo, type: battery, colour: red}\n",
			wantPath: "text_sensor[0].colour",
		},
		{
			name:     "platform specific key on other platform",
			yaml:     "text_sensor:\n  - {platform: secplus_gdo, type: battery, device_class: battery}\n",
			wantPath: "text_sensor[0].device_class",
		},
		{
			name:     "unknown controller key",
			yaml:     "secplus_gdo:\n  input_gdo_pin: 16\n  output_gdo_pin: 17\n  uart: 2\n",
			wantPath: "secplus_gdo.uart",
		},
		{
			name:     "missing platform",
			yaml:     "text_sensor:\n  - {type: battery}\n",
			wantPath: "text_sensor[0].platform",
		},
		{
			name:     "platform list is a mapping",
			yaml:     "text_sensor:\n  platform: secplus_gdo\n",
			wantPath: "text_sensor",
		},
		{
			name:     "bad pin",
			yaml:     "secplus_gdo:\n  input_gdo_pin: D4\n  output_gdo_pin: 17\n",
			wantPath: "secplus_gdo.input_gdo_pin",
		},
		{
			name:     "pin mapping without number",
			yaml:     "secplus_gdo:\n  input_gdo_pin: 16\n  output_gdo_pin:\n    inverted: true\n",
			wantPath: "secplus_gdo.output_gdo_pin",
		},
		{
			name:     "duplicate controller block",
			yaml:     "secplus_gdo:\n  id: gdoA\n  input_gdo_pin: 16\n  output_gdo_pin: 17\nsecplus_gdo:\n  id: gdoB\n  input_gdo_pin: 16\n  output_gdo_pin: 17\n",
			wantPath: "secplus_gdo",
		},
		{
			name:     "duplicate controller key",
			yaml:     "secplus_gdo:\n  id: gdoA\n  id: gdoB\n  input_gdo_pin: 16\n  output_gdo_pin: 17\n",
			wantPath: "secplus_gdo.id",
		},
		{
			name:     "duplicate platform section",
			yaml:     "text_sensor:\n  - {platform: secplus_gdo, type: battery}\ntext_sensor:\n  - {platform: secplus_gdo, type: battery}\n",
			wantPath: "text_sensor",
		},
		{
			name:     "controller not a mapping",
			yaml:     "secplus_gdo: yes\n",
			wantPath: "secplus_gdo",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.yaml))
			if !errors.Is(err, codegen.ErrSchema) {
				t.Fatalf("Decode() error = %v, want ErrSchema", err)
			}
			var schemaErr *codegen.SchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("Decode() error = %v, want *SchemaError", err)
			}
			if schemaErr.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", schemaErr.Path, tt.wantPath)
			}
			if schemaErr.Line == 0 {
				t.Error("Line not recorded")
			}
		})
	}
}

func TestDecode_InvalidYAML(t *testing.T) {
	_, err := Decode(strings.NewReader("text_sensor: [platform: "))
	if err == nil {
		t.Fatal("Decode() expected error for invalid YAML, got nil")
	}
	if errors.Is(err, codegen.ErrSchema) {
		t.Error("syntax error reported as schema error")
	}
}

func TestDecode_TopLevelNotMapping(t *testing.T) {
	_, err := Decode(strings.NewReader("- a\n- b\n"))
	if !errors.Is(err, codegen.ErrSchema) {
		t.Errorf("Decode() error = %v, want ErrSchema", err)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "garage.yaml")
	if err := os.WriteFile(path, []byte(garageYAML), 0600); err != nil {
		t.Fatalf("failed to write device file: %v", err)
	}

	doc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if doc.Source != path {
		t.Errorf("Source = %q, want %q", doc.Source, path)
	}

	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadFile() expected error for missing file, got nil")
	}
}

func TestParsePin(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "16", want: 16},
		{input: "GPIO16", want: 16},
		{input: "gpio0", want: 0},
		{input: " GPIO5 ", want: 5},
		{input: "D4", wantErr: true},
		{input: "GPIO", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parsePin(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parsePin(%q) expected error", tt.input)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("parsePin(%q) = %d, %v, want %d", tt.input, got, err, tt.want)
			}
		})
	}
}
