package runlog

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/trashdetect/perception/internal/timeutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMigrated(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Failed to open run log: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMigrateUpIsIdempotent(t *testing.T) {
	s := newTestStore(t)

	if err := s.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp: %v", err)
	}
	version, dirty, err := s.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 2 || dirty {
		t.Errorf("version = %d dirty = %v, want 2 clean", version, dirty)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)

	id, err := s.StartRun(RunParams{
		DataRoot: "/data/unified", CheckpointPath: "model.ckpt",
		Epochs: 2, BatchSize: 4, LearningRate: 0.001, NumTrashClasses: 6, Samples: 9,
	})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}

	run, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusRunning || run.FinishedAt != nil || run.FinalLoss != nil {
		t.Errorf("fresh run = %+v", run)
	}
	if run.NumTrashClasses != 6 || run.Samples != 9 {
		t.Errorf("params not stored: %+v", run.RunParams)
	}

	for i, loss := range []float64{3.5, 2.25} {
		if err := s.RecordEpoch(id, Epoch{Epoch: i + 1, Loss: loss, Trash: loss / 2, DurationMS: 10}); err != nil {
			t.Fatalf("RecordEpoch: %v", err)
		}
	}
	if err := s.FinishRun(id, 2.25, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err = s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusSucceeded || run.FinishedAt == nil || run.FinalLoss == nil || *run.FinalLoss != 2.25 {
		t.Errorf("finished run = %+v", run)
	}

	epochs, err := s.EpochLosses(id)
	if err != nil {
		t.Fatalf("EpochLosses: %v", err)
	}
	if len(epochs) != 2 || epochs[0].Loss != 3.5 || epochs[1].Trash != 1.125 {
		t.Errorf("epochs = %+v", epochs)
	}
}

func TestFailedRun(t *testing.T) {
	s := newTestStore(t)
	id, err := s.StartRun(RunParams{DataRoot: "x", CheckpointPath: "y", Epochs: 1, BatchSize: 1, LearningRate: 1, NumTrashClasses: 1})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if err := s.FinishRun(id, 0, errors.New("data error: bad.jpg")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != StatusFailed || run.Error != "data error: bad.jpg" || run.FinalLoss != nil {
		t.Errorf("failed run = %+v", run)
	}
}

func TestUnknownRun(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRun("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun error = %v, want ErrNotFound", err)
	}
	if err := s.FinishRun("nope", 1, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun error = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := s.StartRun(RunParams{DataRoot: "x", CheckpointPath: "y", Epochs: 1, BatchSize: 1, LearningRate: 1, NumTrashClasses: 1})
		if err != nil {
			t.Fatalf("StartRun: %v", err)
		}
		ids = append(ids, id)
	}
	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestTimestampsFollowClock(t *testing.T) {
	s := newTestStore(t)
	start := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	s.SetClock(clock)

	id, err := s.StartRun(RunParams{DataRoot: "x", CheckpointPath: "y", Epochs: 1, BatchSize: 1, LearningRate: 1, NumTrashClasses: 1})
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	clock.Advance(42 * time.Minute)
	if err := s.FinishRun(id, 1.5, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, err := s.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if !run.StartedAt.Equal(start) {
		t.Errorf("StartedAt = %v, want %v", run.StartedAt, start)
	}
	if run.FinishedAt == nil || run.FinishedAt.Sub(run.StartedAt) != 42*time.Minute {
		t.Errorf("FinishedAt = %v, want start+42m", run.FinishedAt)
	}

	repID, err := s.RecordReport(Report{Collection: "lfw", Kind: "identity", OutputRoot: "/data"})
	if err != nil {
		t.Fatalf("RecordReport: %v", err)
	}
	reports, err := s.ListReports(1)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != repID || !reports[0].CreatedAt.Equal(start.Add(42*time.Minute)) {
		t.Errorf("reports = %+v", reports)
	}
}

func TestReports(t *testing.T) {
	s := newTestStore(t)
	id, err := s.RecordReport(Report{
		Collection: "taco", Kind: "coco", OutputRoot: "/data/unified",
		Images: 10, Labels: 10, Skipped: 2, Unlabelled: 1,
		Issues: []Issue{
			{Image: "batch_1/000001.jpg", Reason: "referenced image missing on disk"},
			{Image: "batch_1/000002.jpg", Reason: "box exceeds image"},
		},
	})
	if err != nil {
		t.Fatalf("RecordReport: %v", err)
	}

	reports, err := s.ListReports(10)
	if err != nil {
		t.Fatalf("ListReports: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != id || reports[0].Skipped != 2 {
		t.Errorf("reports = %+v", reports)
	}

	issues, err := s.ReportIssues(id)
	if err != nil {
		t.Fatalf("ReportIssues: %v", err)
	}
	if len(issues) != 2 || issues[1].Reason != "box exceeds image" {
		t.Errorf("issues = %+v", issues)
	}
}

func TestAttachAdminRoutes(t *testing.T) {
	s := newTestStore(t)
	mux := http.NewServeMux()
	if err := s.AttachAdminRoutes(mux); err != nil {
		t.Fatalf("AttachAdminRoutes: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/debug/tailsql/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	// Registered, though access may be refused for non-local callers.
	if w.Code == http.StatusNotFound {
		t.Error("Route /debug/tailsql/ should be registered, got 404")
	}
}
