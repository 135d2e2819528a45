package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/roach88/mapsync/internal/feature"
	"github.com/roach88/mapsync/internal/geometry"
	"github.com/roach88/mapsync/internal/session"
	"github.com/roach88/mapsync/internal/testutil"
)

// Harness runs one scenario against a fresh fake server and session.
type Harness struct {
	srv    *testutil.MapServer
	sess   *session.Session
	geo    *geometry.Engine
	logger *slog.Logger

	mu     sync.Mutex
	seq    int64
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario gets its own server with sequential feature ids ("F0001",
// "F0002", ...) and a blocking, unsigned session without a background
// poller, so every notification fires inside the step that caused it and
// traces are stable across runs.
//
// Execution flow:
// 1. Start the server and open the session
// 2. Execute setup steps (server seeding)
// 3. Execute flow steps, checking expect clauses
// 4. Evaluate assertions and record the final state
//
// The returned error is reserved for broken scenarios (bad args, failed
// setup). Expectation and assertion failures land in Result.Errors.
func Run(t testing.TB, scenario *Scenario) (*Result, error) {
	t.Helper()

	mapID := scenario.MapID
	if mapID == "" {
		mapID = DefaultMapID
	}
	mode, ok := session.ParseCoordCheck(scenario.CoordCheck)
	if !ok {
		return nil, fmt.Errorf("unknown coord_check %q", scenario.CoordCheck)
	}

	h := &Harness{
		srv:    testutil.NewMapServer(t, mapID, testutil.WithIDs(testutil.NewSequentialIDs("F"))),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		result: NewResult(),
	}

	sess, err := session.New(session.Config{
		Scheme:          "http",
		Domain:          h.srv.Domain(),
		MapID:           mapID,
		DefaultBlocking: true,
		CoordCheck:      mode,
		RequestTimeout:  5 * time.Second,
		RetryBackoff:    10 * time.Millisecond,
	}, session.WithNotifier(h.notifier()), session.WithLogger(h.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer sess.Close()
	h.sess = sess
	h.geo = geometry.New(sess, geometry.WithLogger(h.logger))

	ctx := context.Background()

	if err := h.executeSetup(ctx, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	if err := h.executeFlow(ctx, scenario.Flow); err != nil {
		return nil, fmt.Errorf("failed to execute flow: %w", err)
	}

	result := h.snapshot()
	actx := &AssertionContext{Tables: map[string]func() []*feature.Feature{
		TableCache:  func() []*feature.Feature { return sess.Cache().Features() },
		TableServer: h.srv.Features,
	}}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	result.State[TableCache] = featureIDs(sess.Cache().Features())
	result.State[TableServer] = featureIDs(h.srv.Features())

	return result, nil
}

// executeSetup runs all setup steps. Setup steps must succeed.
func (h *Harness) executeSetup(ctx context.Context, setup []ActionStep) error {
	for i, step := range setup {
		h.record(TraceEvent{Type: EventInvocation, Action: step.Action, Args: step.Args})
		res, err := actions[step.Action](ctx, h, step.Args)
		if err != nil {
			return fmt.Errorf("setup step %d (%s): %w", i, step.Action, err)
		}
		h.record(TraceEvent{Type: EventCompletion, Case: CaseOK, Result: res})
		h.logger.Info("setup step completed", "step", i, "action", step.Action)
	}
	return nil
}

// executeFlow runs all flow steps and validates expect clauses against the
// outcome the session actually produced.
func (h *Harness) executeFlow(ctx context.Context, flow []FlowStep) error {
	for i, step := range flow {
		h.record(TraceEvent{Type: EventInvocation, Action: step.Invoke, Args: step.Args})

		res, err := actions[step.Invoke](ctx, h, step.Args)
		var aerr *argError
		if errors.As(err, &aerr) {
			return fmt.Errorf("flow step %d (%s): %w", i, step.Invoke, err)
		}
		got := caseOf(err)
		h.record(TraceEvent{Type: EventCompletion, Case: got, Result: res})

		want := CaseOK
		if step.Expect != nil {
			want = step.Expect.Case
		}
		switch {
		case got != want:
			msg := fmt.Sprintf("flow[%d] %s: expected case %s, got %s", i, step.Invoke, want, got)
			if err != nil {
				msg += ": " + err.Error()
			}
			h.fail(msg)
		case step.Expect != nil:
			if key, ok := subsetMatch(res, step.Expect.Result); !ok {
				h.fail(fmt.Sprintf("flow[%d] %s: result field %q = %v, want %v",
					i, step.Invoke, key, res[key], step.Expect.Result[key]))
			}
		}

		h.logger.Info("flow step completed",
			"step", i,
			"action", step.Invoke,
			"case", got,
		)
	}
	return nil
}

// record appends an event to the trace. Notifications may arrive on
// session goroutines, so the trace is guarded.
func (h *Harness) record(e TraceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	e.Seq = h.seq
	h.result.Trace = append(h.result.Trace, e)
}

func (h *Harness) fail(msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.AddError(msg)
}

// snapshot copies the result so that notifications fired while the session
// shuts down do not reach it.
func (h *Harness) snapshot() *Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := *h.result
	r.Trace = slices.Clone(h.result.Trace)
	r.Errors = slices.Clone(h.result.Errors)
	r.State = make(map[string][]string)
	return &r
}

func (h *Harness) notify(action string, args map[string]interface{}) {
	h.record(TraceEvent{Type: EventNotification, Action: action, Args: args})
}

// notifier turns session notifications into trace events.
func (h *Harness) notifier() session.Notifier {
	describe := func(f *feature.Feature) map[string]interface{} {
		return map[string]interface{}{"id": f.ID, "class": string(f.Class()), "title": f.Title()}
	}
	return session.Notifier{
		NewFeature:      func(f *feature.Feature) { h.notify("new", describe(f)) },
		PropertyChanged: func(f *feature.Feature) { h.notify("properties", describe(f)) },
		GeometryChanged: func(f *feature.Feature) {
			h.notify("geometry", map[string]interface{}{
				"id":     f.ID,
				"class":  string(f.Class()),
				"points": f.Geometry.NumPositions(),
			})
		},
		DeletedFeature: func(id string, class feature.Class) {
			h.notify("deleted", map[string]interface{}{"id": id, "class": string(class)})
		},
		Disconnected: func() { h.notify("disconnected", nil) },
		Reconnected:  func() { h.notify("reconnected", nil) },
		MapClosed:    func() { h.notify("map_closed", nil) },
		FailedRequest: func(info session.RequestInfo, _ error) {
			h.notify("failed", map[string]interface{}{"method": info.Method})
		},
	}
}

// geometryCases names the geometry engine's sentinel errors.
var geometryCases = []struct {
	err  error
	name string
}{
	{geometry.ErrNotFound, "NOT_FOUND"},
	{geometry.ErrAmbiguous, "AMBIGUOUS"},
	{geometry.ErrNotGeometric, "NOT_GEOMETRIC"},
	{geometry.ErrNoIntersection, "NO_INTERSECTION"},
	{geometry.ErrEmptyResult, "EMPTY_RESULT"},
	{geometry.ErrNotSingle, "NOT_SINGLE"},
	{geometry.ErrUnsupported, "UNSUPPORTED"},
}

// caseOf maps a step error to its completion case.
func caseOf(err error) string {
	if err == nil {
		return CaseOK
	}
	if code := session.CodeOf(err); code != "" {
		return string(code)
	}
	for _, c := range geometryCases {
		if errors.Is(err, c.err) {
			return c.name
		}
	}
	return "ERROR"
}

func featureIDs(fs []*feature.Feature) []string {
	ids := make([]string, len(fs))
	for i, f := range fs {
		ids[i] = f.ID
	}
	slices.Sort(ids)
	return ids
}
