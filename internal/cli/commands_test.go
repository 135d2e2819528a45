package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/mapsync/internal/feature"
	"github.com/roach88/mapsync/internal/store"
	"github.com/roach88/mapsync/internal/testutil"
)

const testMap = "ABC123"

// writeConfig writes a config pointing at srv, plus any extra YAML lines.
func writeConfig(t *testing.T, srv *testutil.MapServer, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mapsync.yaml")
	content := fmt.Sprintf("domain: %q\nscheme: http\nmap_id: %s\n%s", srv.Domain(), srv.MapID, extra)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// execute runs the root command and returns stdout. Logs are discarded.
func execute(ctx context.Context, args ...string) (string, error) {
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(logs)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func seedMap(srv *testutil.MapServer) {
	srv.Put(feature.New("A", feature.ClassMarker, "alpha", feature.NewPoint(feature.Position{-120, 39})))
	srv.Put(feature.New("B", feature.ClassShape, "bravo", feature.NewLineString([]feature.Position{{-120, 39}, {-121, 40}})))
	srv.Put(feature.New("F", feature.ClassFolder, "ops", nil))
}

func TestList_Golden(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap)
	seedMap(srv)
	cfg := writeConfig(t, srv, "")

	out, err := execute(context.Background(), "-c", cfg, "list")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "list", []byte(out))
}

func TestList_JSONFilter(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap)
	seedMap(srv)
	cfg := writeConfig(t, srv, "")

	out, err := execute(context.Background(), "-c", cfg, "--format", "json", "list", "--class", "Shape")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   []FeatureSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []FeatureSummary{{ID: "B", Class: "Shape", Title: "bravo", Geometry: "LineString", Points: 2}}, resp.Data)
}

func TestList_MissingConfig(t *testing.T) {
	_, err := execute(context.Background(), "-c", filepath.Join(t.TempDir(), "nope.yaml"), "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestList_DeniedFails(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap)
	srv.Deny()
	cfg := writeConfig(t, srv, "")

	_, err := execute(context.Background(), "-c", cfg, "list")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to sync map")
}

func TestMarkerAndDelete(t *testing.T) {
	ctx := context.Background()
	srv := testutil.NewMapServer(t, testMap, testutil.WithIDs(testutil.NewSequentialIDs("M")))
	cfg := writeConfig(t, srv, "")

	out, err := execute(ctx, "-c", cfg, "marker", "--description", "base", "--", "camp", "-120.5", "39.25")
	require.NoError(t, err)
	assert.Equal(t, "created Marker M0001\n", out)

	f, ok := srv.Feature("M0001")
	require.True(t, ok)
	assert.Equal(t, "camp", f.Title())
	assert.Equal(t, "base", f.Properties["description"])
	assert.Equal(t, feature.Position{-120.5, 39.25}, f.Geometry.Coord)

	out, err = execute(ctx, "-c", cfg, "delete", "Marker", "M0001")
	require.NoError(t, err)
	assert.Equal(t, "deleted Marker M0001\n", out)
	assert.Empty(t, srv.Features())
}

func TestMarker_BadArguments(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap)
	cfg := writeConfig(t, srv, "")

	_, err := execute(context.Background(), "-c", cfg, "marker", "--", "camp", "west", "39")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(context.Background(), "-c", cfg, "marker", "--queued", "--", "camp", "-120", "39")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "journal")

	assert.Empty(t, srv.Requests())
}

func TestQueuedMarkerDeliveredByWatch(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap)
	journal := filepath.Join(t.TempDir(), "journal.db")
	cfg := writeConfig(t, srv, fmt.Sprintf("journal: %q\nsync:\n  warmup: 1ms\n  interval: 20ms\nretry_backoff: 10ms\n", journal))

	out, err := execute(context.Background(), "-c", cfg, "marker", "--queued", "--", "late", "-120", "39")
	require.NoError(t, err)
	assert.Equal(t, "created Marker (queued)\n", out)
	assert.Empty(t, srv.Requests())

	out, err = execute(context.Background(), "-c", cfg, "--format", "json", "journal")
	require.NoError(t, err)
	var resp struct {
		Data JournalReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Pending, 1)
	assert.Equal(t, "POST", resp.Data.Pending[0].Method)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err = execute(ctx, "-c", cfg, "watch")
	require.NoError(t, err)

	fs := srv.Features()
	require.Len(t, fs, 1)
	assert.Equal(t, "late", fs[0].Title())

	st, err := store.Open(journal)
	require.NoError(t, err)
	defer st.Close()
	pending, err := st.PendingEntries(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
	last, err := st.LastSync(context.Background())
	require.NoError(t, err)
	assert.Positive(t, last)
}

func TestWatch_PrintsChanges(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap)
	srv.Put(feature.New("A", feature.ClassMarker, "alpha", feature.NewPoint(feature.Position{-120, 39})))
	cfg := writeConfig(t, srv, "sync:\n  warmup: 1ms\n  interval: 20ms\n")

	remove := time.AfterFunc(200*time.Millisecond, func() { srv.Remove("A") })
	defer remove.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 600*time.Millisecond)
	defer cancel()
	out, err := execute(ctx, "-c", cfg, "watch")
	require.NoError(t, err)

	assert.Contains(t, out, "new Marker A \"alpha\"\n")
	assert.Contains(t, out, "deleted Marker A\n")
}

func TestWatch_DeniedExitsWithFailure(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap)
	srv.Deny()
	cfg := writeConfig(t, srv, "sync:\n  warmup: 1ms\n  interval: 20ms\n")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := execute(ctx, "-c", cfg, "watch")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "map closed")
}

func seedCut(srv *testutil.MapServer) {
	srv.Put(feature.New("T", feature.ClassShape, "trail", feature.NewLineString([]feature.Position{{-5, 5}, {15, 5}})))
	srv.Put(feature.New("Q", feature.ClassShape, "square", feature.NewPolygon([]feature.Position{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}})))
}

func TestCut_DryRunLeavesMap(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap)
	seedCut(srv)
	cfg := writeConfig(t, srv, "")

	out, err := execute(context.Background(), "-c", cfg, "cut", "--dry-run", "trail", "square")
	require.NoError(t, err)
	assert.Equal(t, "cut (dry run) trail: 2 piece(s), points [2 2]\n", out)
	assert.Equal(t, 0, srv.Count("POST", ""))
}

func TestCut_UpdatesTargetAndCreatesSibling(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap, testutil.WithIDs(testutil.NewSequentialIDs("S")))
	seedCut(srv)
	cfg := writeConfig(t, srv, "")

	out, err := execute(context.Background(), "-c", cfg, "cut", "trail", "id:Q")
	require.NoError(t, err)
	assert.Equal(t, "cut trail: 2 piece(s), points [2 2]\nsibling S0001 \"trail:1\"\n", out)

	trail, ok := srv.Feature("T")
	require.True(t, ok)
	assert.Equal(t, []feature.Position{{-5, 5}, {0, 5}}, trail.Geometry.Line)

	sib, ok := srv.Feature("S0001")
	require.True(t, ok)
	assert.Equal(t, "trail:1", sib.Title())
	assert.Equal(t, []feature.Position{{10, 5}, {15, 5}}, sib.Geometry.Line)
}

func TestCut_UnknownOperand(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap)
	seedCut(srv)
	cfg := writeConfig(t, srv, "")

	_, err := execute(context.Background(), "-c", cfg, "crop", "trail", "nowhere")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestNewMap(t *testing.T) {
	srv := testutil.NewMapServer(t, testMap, testutil.WithIDs(testutil.NewSequentialIDs("MAP")))
	cfg := writeConfig(t, srv, "credentials:\n  account_id: ACCT9\n")

	out, err := execute(context.Background(), "-c", cfg, "newmap", "search")
	require.NoError(t, err)
	assert.Equal(t, "created CollaborativeMap MAP0001\n", out)
}

// journalFixture writes a journal with two pending entries and two polls.
func journalFixture(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendEntry(ctx, store.Entry{
		ID: "e-1", Method: "POST", Path: "/api/v1/map/ABC123/Marker", Body: `{"properties":{"title":"a"}}`,
		Class: "Marker", CreatedAt: base,
	}))
	require.NoError(t, st.AppendEntry(ctx, store.Entry{
		ID: "e-2", Method: "DELETE", Path: "/api/v1/map/ABC123/Marker/M0001",
		Class: "Marker", FeatureID: "M0001", CreatedAt: base.Add(5 * time.Second),
	}))
	require.NoError(t, st.RecordSync(ctx, store.SyncRecord{Timestamp: 1772366400000, Changed: 2, At: base}))
	require.NoError(t, st.RecordSync(ctx, store.SyncRecord{Timestamp: 1772366410000, Changed: 1, Deleted: 1, At: base.Add(10 * time.Second)}))
	return path
}

func TestJournal_Golden(t *testing.T) {
	path := journalFixture(t)
	cfgPath := filepath.Join(t.TempDir(), "mapsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("domain: example.test\njournal: %q\n", path)), 0o600))

	out, err := execute(context.Background(), "-c", cfgPath, "journal", "--history", "5")
	require.NoError(t, err)
	newGoldie(t).Assert(t, "journal", []byte(out))
}

func TestJournal_Prune(t *testing.T) {
	path := journalFixture(t)
	cfgPath := filepath.Join(t.TempDir(), "mapsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf("domain: example.test\njournal: %q\n", path)), 0o600))

	out, err := execute(context.Background(), "-c", cfgPath, "journal", "--prune", "1", "--history", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "pruned: 1")
	assert.Contains(t, out, "sync 1772366410000 changed=1 deleted=1")
	assert.NotContains(t, out, "sync 1772366400000")
}

func TestJournal_NotConfigured(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "mapsync.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("domain: example.test\n"), 0o600))

	_, err := execute(context.Background(), "-c", cfgPath, "journal")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
