// internal/checks/params.go
package checks

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
)

// Kind names one of the supported check types
type Kind string

const (
	KindFileExists     Kind = "file_exists"
	KindFileContent    Kind = "file_content"
	KindRegistryKey    Kind = "registry_key"
	KindConfigSetting  Kind = "config_setting"
	KindProcessRunning Kind = "process_running"
	KindPortOpen       Kind = "port_open"
	KindCommandOutput  Kind = "command_output"
)

// Kinds lists every supported kind in a stable order
var Kinds = []Kind{
	KindFileExists,
	KindFileContent,
	KindRegistryKey,
	KindConfigSetting,
	KindProcessRunning,
	KindPortOpen,
	KindCommandOutput,
}

// Check is a validated, kind-specific parameter set.
// The set of implementations is closed to this package.
type Check interface {
	Kind() Kind
	isCheck()
}

// ValidationError reports parameters that do not fit the schema of their kind
type ValidationError struct {
	Kind Kind
	Err  error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ErrUnknownKind is returned by Parse for a kind outside Kinds
var ErrUnknownKind = errors.New("unknown check kind")

// FileExists passes when Path exists
type FileExists struct {
	Path string
}

// FileContent passes when Pattern matching the file content equals ShouldMatch
type FileContent struct {
	Path        string
	Pattern     *regexp.Regexp
	ShouldMatch bool
}

// RegistryKey checks a Windows registry key and optionally one of its values
type RegistryKey struct {
	Path      string
	ValueName string
	Expected  *string
}

// ConfigSetting compares a key=value or key: value line of a text file
type ConfigSetting struct {
	File     string
	Key      string
	Expected string
	line     *regexp.Regexp
}

// ProcessRunning passes when any process name contains Name, case-insensitively
type ProcessRunning struct {
	Name string
}

// PortOpen passes when something is listening on the local port
type PortOpen struct {
	Port int
}

// CommandOutput runs Command through the platform shell and matches its output
type CommandOutput struct {
	Command         string
	ExpectedPattern *regexp.Regexp
}

func (FileExists) Kind() Kind     { return KindFileExists }
func (FileContent) Kind() Kind    { return KindFileContent }
func (RegistryKey) Kind() Kind    { return KindRegistryKey }
func (ConfigSetting) Kind() Kind  { return KindConfigSetting }
func (ProcessRunning) Kind() Kind { return KindProcessRunning }
func (PortOpen) Kind() Kind       { return KindPortOpen }
func (CommandOutput) Kind() Kind  { return KindCommandOutput }

func (FileExists) isCheck()     {}
func (FileContent) isCheck()    {}
func (RegistryKey) isCheck()    {}
func (ConfigSetting) isCheck()  {}
func (ProcessRunning) isCheck() {}
func (PortOpen) isCheck()       {}
func (CommandOutput) isCheck()  {}

// Parse validates raw parameters against the schema of kind.
// Regular expressions are compiled here so a bad pattern is a validation error.
func Parse(kind string, raw json.RawMessage) (Check, error) {
	k := Kind(kind)
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = json.RawMessage("{}")
	}

	invalid := func(err error) (Check, error) {
		return nil, &ValidationError{Kind: k, Err: err}
	}

	switch k {
	case KindFileExists:
		var p struct {
			Path *string `json:"path"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid(err)
		}
		if err := required("path", p.Path); err != nil {
			return invalid(err)
		}
		return FileExists{Path: *p.Path}, nil

	case KindFileContent:
		var p struct {
			Path        *string `json:"path"`
			Pattern     *string `json:"pattern"`
			ShouldMatch *bool   `json:"should_match"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid(err)
		}
		if err := required("path", p.Path); err != nil {
			return invalid(err)
		}
		if err := required("pattern", p.Pattern); err != nil {
			return invalid(err)
		}
		re, err := regexp.Compile(*p.Pattern)
		if err != nil {
			return invalid(fmt.Errorf("invalid regex pattern: %w", err))
		}
		c := FileContent{Path: *p.Path, Pattern: re, ShouldMatch: true}
		if p.ShouldMatch != nil {
			c.ShouldMatch = *p.ShouldMatch
		}
		return c, nil

	case KindRegistryKey:
		var p struct {
			Path      *string `json:"path"`
			ValueName *string `json:"value_name"`
			Expected  *string `json:"expected"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid(err)
		}
		if err := required("path", p.Path); err != nil {
			return invalid(err)
		}
		c := RegistryKey{Path: *p.Path, Expected: p.Expected}
		if p.ValueName != nil {
			c.ValueName = *p.ValueName
		}
		return c, nil

	case KindConfigSetting:
		var p struct {
			File     *string `json:"file"`
			Key      *string `json:"key"`
			Expected *string `json:"expected"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid(err)
		}
		for _, f := range []struct {
			name string
			v    *string
		}{{"file", p.File}, {"key", p.Key}} {
			if err := required(f.name, f.v); err != nil {
				return invalid(err)
			}
		}
		if p.Expected == nil {
			return invalid(errors.New("missing required field: expected"))
		}
		return ConfigSetting{
			File:     *p.File,
			Key:      *p.Key,
			Expected: *p.Expected,
			line:     regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(*p.Key) + `\s*[=:]\s*(.*)$`),
		}, nil

	case KindProcessRunning:
		var p struct {
			Name *string `json:"name"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid(err)
		}
		if err := required("name", p.Name); err != nil {
			return invalid(err)
		}
		return ProcessRunning{Name: *p.Name}, nil

	case KindPortOpen:
		var p struct {
			Port *int `json:"port"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid(err)
		}
		if p.Port == nil {
			return invalid(errors.New("missing required field: port"))
		}
		if *p.Port < 1 || *p.Port > 65535 {
			return invalid(fmt.Errorf("port %d out of range 1-65535", *p.Port))
		}
		return PortOpen{Port: *p.Port}, nil

	case KindCommandOutput:
		var p struct {
			Command         *string `json:"command"`
			ExpectedPattern *string `json:"expected_pattern"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			return invalid(err)
		}
		if err := required("command", p.Command); err != nil {
			return invalid(err)
		}
		if p.ExpectedPattern == nil {
			return invalid(errors.New("missing required field: expected_pattern"))
		}
		re, err := regexp.Compile(*p.ExpectedPattern)
		if err != nil {
			return invalid(fmt.Errorf("invalid regex pattern: %w", err))
		}
		return CommandOutput{Command: *p.Command, ExpectedPattern: re}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func required(name string, v *string) error {
	if v == nil {
		return fmt.Errorf("missing required field: %s", name)
	}
	if *v == "" {
		return fmt.Errorf("field %s must not be empty", name)
	}
	return nil
}
