package runlog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RunParams are the inputs recorded when a run starts.
type RunParams struct {
	DataRoot        string  `json:"data_root"`
	CheckpointPath  string  `json:"checkpoint_path"`
	Epochs          int     `json:"epochs"`
	BatchSize       int     `json:"batch_size"`
	LearningRate    float64 `json:"learning_rate"`
	NumTrashClasses int     `json:"num_trash_classes"`
	Samples         int     `json:"samples"`
}

// Run is one row of training_runs.
type Run struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	RunParams
	FinalLoss *float64 `json:"final_loss,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Epoch is one row of training_epochs.
type Epoch struct {
	Epoch      int     `json:"epoch"`
	Loss       float64 `json:"loss"`
	BBox       float64 `json:"bbox"`
	Person     float64 `json:"person"`
	Trash      float64 `json:"trash"`
	Disposal   float64 `json:"disposal"`
	DurationMS int64   `json:"duration_ms"`
}

// StartRun inserts a running run and returns its id.
func (s *Store) StartRun(p RunParams) (string, error) {
	id := uuid.New().String()
	_, err := s.Exec(`
		INSERT INTO training_runs (
			run_id, started_unix_nanos, status, data_root, checkpoint_path,
			epochs, batch_size, learning_rate, num_trash_classes, samples
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, s.clock.Now().UnixNano(), StatusRunning, p.DataRoot, p.CheckpointPath,
		p.Epochs, p.BatchSize, p.LearningRate, p.NumTrashClasses, p.Samples,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// RecordEpoch stores the losses of one finished epoch.
func (s *Store) RecordEpoch(runID string, e Epoch) error {
	_, err := s.Exec(`
		INSERT OR REPLACE INTO training_epochs (
			run_id, epoch, loss, bbox_loss, person_loss, trash_loss, disposal_loss, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, e.Epoch, e.Loss, e.BBox, e.Person, e.Trash, e.Disposal, e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert epoch %d for run %s: %w", e.Epoch, runID, err)
	}
	return nil
}

// FinishRun marks a run as succeeded with finalLoss, or failed when runErr is
// not nil.
func (s *Store) FinishRun(runID string, finalLoss float64, runErr error) error {
	status := StatusSucceeded
	var loss, msg any = finalLoss, nil
	if runErr != nil {
		status, loss, msg = StatusFailed, nil, runErr.Error()
	}
	res, err := s.Exec(`
		UPDATE training_runs
		SET finished_unix_nanos = ?, status = ?, final_loss = ?, error = ?
		WHERE run_id = ?`,
		s.clock.Now().UnixNano(), status, loss, msg, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const runColumns = `
	run_id, started_unix_nanos, finished_unix_nanos, status, data_root, checkpoint_path,
	epochs, batch_size, learning_rate, num_trash_classes, samples, final_loss, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
		loss     sql.NullFloat64
		msg      sql.NullString
	)
	err := sc.Scan(&r.ID, &started, &finished, &r.Status, &r.DataRoot, &r.CheckpointPath,
		&r.Epochs, &r.BatchSize, &r.LearningRate, &r.NumTrashClasses, &r.Samples, &loss, &msg)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		r.FinishedAt = &t
	}
	if loss.Valid {
		r.FinalLoss = &loss.Float64
	}
	r.Error = msg.String
	return r, nil
}

// ListRuns returns the most recent runs first, at most limit of them.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	rows, err := s.Query(`SELECT `+runColumns+` FROM training_runs
		ORDER BY started_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run by id.
func (s *Store) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.QueryRow(`SELECT `+runColumns+` FROM training_runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &r, nil
}

// EpochLosses returns a run's epochs in order.
func (s *Store) EpochLosses(runID string) ([]Epoch, error) {
	rows, err := s.Query(`
		SELECT epoch, loss, bbox_loss, person_loss, trash_loss, disposal_loss, duration_ms
		FROM training_epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query epochs: %w", err)
	}
	defer rows.Close()

	var out []Epoch
	for rows.Next() {
		var e Epoch
		if err := rows.Scan(&e.Epoch, &e.Loss, &e.BBox, &e.Person, &e.Trash, &e.Disposal, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan epoch: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
