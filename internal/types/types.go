package types

import (
	"fmt"
	"go/token"
	"strings"
)

// Severity is the level an issue is reported at.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityOff
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityOff:
		return "off"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity accepts the names printed by String, case insensitively.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error":
		return SeverityError, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "info":
		return SeverityInfo, nil
	case "off", "none":
		return SeverityOff, nil
	}
	return SeverityError, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

func (s *Severity) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	v, err := ParseSeverity(raw)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ConfigRule is the per-rule section of the configuration file.
type ConfigRule struct {
	Severity Severity `yaml:"severity"`
}

// Location is one step of a flow.
type Location struct {
	Position token.Position `json:"position"`
	Message  string         `json:"message"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d: %s", l.Position.Filename, l.Position.Line, l.Message)
}

// Flow is an ordered explanation of why an issue holds, from the earliest
// step to the reported location.
type Flow []Location

// Issue represents a finding of the analysis.
type Issue struct {
	Rule      string         `json:"rule"`
	Category  string         `json:"category,omitempty"`
	Filename  string         `json:"filename"`
	Procedure string         `json:"procedure,omitempty"`
	Message   string         `json:"message"`
	Note      string         `json:"note,omitempty"`
	Start     token.Position `json:"start"`
	End       token.Position `json:"end"`
	Severity  Severity       `json:"severity"`
	Flows     []Flow         `json:"flows,omitempty"`
}
