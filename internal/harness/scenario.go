package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a multi-session editing scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Document is the document id every session starts on.
	// Defaults to "doc". Use "new" to exercise server-assigned ids.
	Document string `yaml:"document,omitempty"`

	// Sessions lists the session names. Names double as session ids.
	Sessions []string `yaml:"sessions"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: content, converged, log_count
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action by one session. Exactly one action field is set.
type Step struct {
	// Session performs the step. A sync step without a session syncs all.
	Session string `yaml:"session,omitempty"`

	// Insert types or pastes text.
	Insert *string `yaml:"insert,omitempty"`

	// Backspace deletes the cell before the cursor.
	Backspace bool `yaml:"backspace,omitempty"`

	// Delete removes the cells between two cursor positions.
	Delete *Range `yaml:"delete,omitempty"`

	// Undo and Redo walk the session's own history.
	Undo bool `yaml:"undo,omitempty"`
	Redo bool `yaml:"redo,omitempty"`

	// Sync applies every envelope the session has received so far.
	Sync bool `yaml:"sync,omitempty"`

	// At is the cursor as a cell index in the session's document; the
	// cursor sits before that cell. Omitted means the end of the document.
	At *int `yaml:"at,omitempty"`
}

// Range is a selection between two cursor indexes, in either order.
type Range struct {
	From int `yaml:"from"`
	To   int `yaml:"to"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "content": Session's (or the server's) text equals Expect
	// - "converged": every session matches the server cell for cell
	// - "log_count": the server change log has Count rows
	Type string `yaml:"type"`

	// Session selects whose content to check. "server" or empty means the
	// canonical document.
	Session string `yaml:"session,omitempty"`

	// Expect is the expected text (used by content).
	Expect *string `yaml:"expect,omitempty"`

	// Count is the expected number of log rows (used by log_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertContent   = "content"
	AssertConverged = "converged"
	AssertLogCount  = "log_count"
)

// ServerSession names the canonical document in content assertions.
const ServerSession = "server"

// Action returns the name of the step's action, or "" if none is set.
func (s Step) Action() string {
	switch {
	case s.Insert != nil:
		return "insert"
	case s.Backspace:
		return "backspace"
	case s.Delete != nil:
		return "delete"
	case s.Undo:
		return "undo"
	case s.Redo:
		return "redo"
	case s.Sync:
		return "sync"
	}
	return ""
}

func (s Step) actionCount() int {
	n := 0
	for _, set := range []bool{s.Insert != nil, s.Backspace, s.Delete != nil, s.Undo, s.Redo, s.Sync} {
		if set {
			n++
		}
	}
	return n
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field checking.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks required fields and cross-references.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Sessions) == 0 {
		return fmt.Errorf("at least one session is required")
	}

	known := make(map[string]bool, len(s.Sessions))
	for i, name := range s.Sessions {
		if name == "" || name == ServerSession {
			return fmt.Errorf("sessions[%d]: invalid session name %q", i, name)
		}
		if known[name] {
			return fmt.Errorf("sessions[%d]: duplicate session %q", i, name)
		}
		known[name] = true
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range s.Steps {
		if err := validateStep(step, i, known); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, i, known); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step, index int, known map[string]bool) error {
	if n := step.actionCount(); n != 1 {
		return fmt.Errorf("steps[%d]: exactly one action is required, got %d", index, n)
	}
	if step.Session == "" && !step.Sync {
		return fmt.Errorf("steps[%d]: session is required for %s", index, step.Action())
	}
	if step.Session != "" && !known[step.Session] {
		return fmt.Errorf("steps[%d]: unknown session %q", index, step.Session)
	}
	if step.At != nil && *step.At < 0 {
		return fmt.Errorf("steps[%d]: at must be non-negative", index)
	}
	if step.Delete != nil && (step.Delete.From < 0 || step.Delete.To < 0) {
		return fmt.Errorf("steps[%d]: delete range must be non-negative", index)
	}
	return nil
}

func validateAssertion(a Assertion, index int, known map[string]bool) error {
	switch a.Type {
	case AssertContent:
		if a.Expect == nil {
			return fmt.Errorf("assertions[%d]: expect is required for content", index)
		}
		if a.Session != "" && a.Session != ServerSession && !known[a.Session] {
			return fmt.Errorf("assertions[%d]: unknown session %q", index, a.Session)
		}
	case AssertConverged:
	case AssertLogCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for log_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
