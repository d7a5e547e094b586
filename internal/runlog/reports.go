package runlog

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Report is a normalisation report as stored.
type Report struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Collection string    `json:"collection"`
	Kind       string    `json:"kind"`
	OutputRoot string    `json:"output_root"`
	Images     int       `json:"images"`
	Labels     int       `json:"labels"`
	Skipped    int       `json:"skipped"`
	Unlabelled int       `json:"unlabelled"`
	Issues     []Issue   `json:"issues,omitempty"`
}

// Issue is one per-image problem attached to a report.
type Issue struct {
	Image  string `json:"image"`
	Reason string `json:"reason"`
}

// RecordReport stores r and its issues in one transaction and returns the
// new report id.
func (s *Store) RecordReport(r Report) (string, error) {
	id := uuid.New().String()
	tx, err := s.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO normalization_reports (
			report_id, created_unix_nanos, collection, kind, output_root,
			images, labels, skipped, unlabelled
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, s.clock.Now().UnixNano(), r.Collection, r.Kind, r.OutputRoot,
		r.Images, r.Labels, r.Skipped, r.Unlabelled,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert report: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO normalization_issues (report_id, seq, image, reason) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare issue insert: %w", err)
	}
	defer stmt.Close()
	for i, is := range r.Issues {
		if _, err := stmt.Exec(id, i, is.Image, is.Reason); err != nil {
			return "", fmt.Errorf("failed to insert issue %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit report: %w", err)
	}
	return id, nil
}

// ListReports returns the most recent reports first without their issues.
func (s *Store) ListReports(limit int) ([]Report, error) {
	rows, err := s.Query(`
		SELECT report_id, created_unix_nanos, collection, kind, output_root,
			images, labels, skipped, unlabelled
		FROM normalization_reports ORDER BY created_unix_nanos DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		var (
			r       Report
			created int64
		)
		if err := rows.Scan(&r.ID, &created, &r.Collection, &r.Kind, &r.OutputRoot,
			&r.Images, &r.Labels, &r.Skipped, &r.Unlabelled); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// ReportIssues returns the issues of a report in recorded order.
func (s *Store) ReportIssues(reportID string) ([]Issue, error) {
	rows, err := s.Query(`SELECT image, reason FROM normalization_issues WHERE report_id = ? ORDER BY seq`, reportID)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var out []Issue
	for rows.Next() {
		var is Issue
		if err := rows.Scan(&is.Image, &is.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		out = append(out, is)
	}
	return out, rows.Err()
}
