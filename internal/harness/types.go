package harness

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if all assertions hold.
	Pass bool `json:"pass"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Snapshot is the final state, used for golden comparison.
	Snapshot Snapshot `json:"snapshot"`
}

// Snapshot is the final state of a scenario.
type Snapshot struct {
	Scenario string            `json:"scenario"`
	Document string            `json:"document"`
	Server   string            `json:"server"`
	Sessions []SessionSnapshot `json:"sessions"`
	Log      []LogEntry        `json:"log"`
}

// SessionSnapshot is one session's final view.
type SessionSnapshot struct {
	Name     string `json:"name"`
	Document string `json:"document"`
	Content  string `json:"content"`
	Unsynced int    `json:"unsynced"`
}

// LogEntry is one row of the server change log.
type LogEntry struct {
	Event     string `json:"event"`
	Action    string `json:"action"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
	Applied   bool   `json:"applied"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
