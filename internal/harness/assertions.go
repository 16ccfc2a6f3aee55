package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the final state and
// returns one message per failure.
func EvaluateAssertions(final *finalState, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(final, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(final *finalState, a Assertion) error {
	switch a.Type {
	case AssertContent:
		return assertContent(final, a)
	case AssertConverged:
		return assertConverged(final)
	case AssertLogCount:
		if len(final.log) != a.Count {
			return &AssertionError{
				Type:     AssertLogCount,
				Expected: fmt.Sprintf("%d log rows", a.Count),
				Actual:   fmt.Sprintf("%d log rows", len(final.log)),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertContent(final *finalState, a Assertion) error {
	who := a.Session
	if who == "" {
		who = ServerSession
	}

	got := final.server.Content()
	if who != ServerSession {
		d, ok := final.sessions[who]
		if !ok {
			return fmt.Errorf("content: unknown session %q", who)
		}
		got = d.Content()
	}

	if got != *a.Expect {
		return &AssertionError{
			Type:     AssertContent,
			Expected: fmt.Sprintf("%s has %q", who, *a.Expect),
			Actual:   fmt.Sprintf("%q", got),
		}
	}
	return nil
}

// assertConverged compares cells, not just text, so that equal text built
// from different cells still fails.
func assertConverged(final *finalState) error {
	var diverged []string
	for _, s := range final.snapshot.Sessions {
		if !final.sessions[s.Name].Equal(final.server) {
			diverged = append(diverged, fmt.Sprintf("%s=%q", s.Name, s.Content))
		}
	}
	if len(diverged) > 0 {
		return &AssertionError{
			Type:     AssertConverged,
			Expected: fmt.Sprintf("all sessions equal server %q", final.server.Content()),
			Actual:   strings.Join(diverged, ", "),
		}
	}
	return nil
}
