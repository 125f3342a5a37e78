package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Supported file formats.
const (
	FormatYAML = "yaml"
	FormatTOML = "toml"
	FormatJSON = "json"
)

// Duration is a time.Duration written as a string such as "250ms" or "2s".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)

	return nil
}

// JSONSchema describes Duration as a duration string.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
		Description: "Go duration string, e.g. 250ms or 2s",
		Examples:    []any{"250ms", "2s"},
	}
}

// Load reads the settings file at path. The format follows the extension: .yaml or .yml,
// .toml, .json. Fields absent from the file keep their Default values, unknown fields are
// rejected, and the result is validated.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	st, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	return st, nil
}

// FormatOf returns the format implied by the extension of path.
func FormatOf(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown settings file extension %q", ErrInvalidSettings, filepath.Ext(path))
	}
}

// Parse decodes data in the given format on top of Default and validates the result.
func Parse(data []byte, format string) (*Settings, error) {
	st := Default()

	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(st); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), st)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%w: unknown keys %v", ErrInvalidSettings, undecoded)
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(st); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrInvalidSettings, format)
	}

	if err := st.Validate(); err != nil {
		return nil, err
	}

	return st, nil
}

// Encode writes st in the given format.
func (st *Settings) Encode(w io.Writer, format string) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return err
		}

		return enc.Close()
	case FormatTOML:
		return toml.NewEncoder(w).Encode(st)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(st)
	default:
		return fmt.Errorf("%w: unknown format %q", ErrInvalidSettings, format)
	}
}

// Schema returns the JSON schema of the settings file.
func Schema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	s := r.Reflect(&Settings{})
	s.Title = "go-ivi instrument settings"

	return json.MarshalIndent(s, "", "  ")
}
