package harness

// Trace event types.
const (
	EventInvocation   = "invocation"
	EventCompletion   = "completion"
	EventNotification = "notification"
)

// CaseOK is the completion case of a step that returned no error.
const CaseOK = "OK"

// TraceEvent is one entry of a scenario trace: a step invocation, its
// completion, or a session notification fired while the step ran.
type TraceEvent struct {
	Type   string                 `json:"type"`
	Action string                 `json:"action,omitempty"`
	Args   map[string]interface{} `json:"args,omitempty"`
	Case   string                 `json:"case,omitempty"`
	Result map[string]interface{} `json:"result,omitempty"`
	Seq    int64                  `json:"seq"`
}

// named reports whether the event carries an action name that assertions
// can match. Completions are matched through their invocation.
func (e TraceEvent) named() bool {
	return e.Type == EventInvocation || e.Type == EventNotification
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success: every expect clause and every
	// assertion held.
	Pass bool `json:"pass"`

	// Trace contains invocations, completions and notifications in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the sorted feature ids of each table at the end of the run.
	State map[string][]string `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string][]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
