package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Load statuses recorded in load_history.
const (
	LoadStatusSucceeded = "succeeded"
	LoadStatusFailed    = "failed"
)

// LoadRecord is one row of load history.
type LoadRecord struct {
	JobID          uuid.UUID `json:"jobId"`
	Generation     int64     `json:"generation"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	RecordsIn      int       `json:"recordsIn"`
	RecordsDeduped int       `json:"recordsDeduped"`
	RecordsDropped int       `json:"recordsDropped"`
	SourceErrors   []string  `json:"sourceErrors"`
	Status         string    `json:"status"`
}

// RecordLoad appends a load cycle outcome to the history.
func (s *Store) RecordLoad(ctx context.Context, rec *LoadRecord) error {
	errs, err := json.Marshal(rec.SourceErrors)
	if err != nil {
		return fmt.Errorf("marshal source errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO load_history (job_id, generation, started_at, finished_at,
			records_in, records_deduped, records_dropped, source_errors, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.JobID.String(), rec.Generation, rec.StartedAt, rec.FinishedAt,
		rec.RecordsIn, rec.RecordsDeduped, rec.RecordsDropped, string(errs), rec.Status,
	)
	if err != nil {
		return fmt.Errorf("record load %s: %w", rec.JobID, err)
	}
	return nil
}

// LoadHistory returns the most recent load records, newest first.
func (s *Store) LoadHistory(ctx context.Context, limit int) ([]*LoadRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, generation, started_at, finished_at,
			records_in, records_deduped, records_dropped, source_errors, status
		 FROM load_history ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query load history: %w", err)
	}
	defer rows.Close()

	var records []*LoadRecord
	for rows.Next() {
		var (
			rec   LoadRecord
			jobID string
			errs  string
		)
		err := rows.Scan(&jobID, &rec.Generation, &rec.StartedAt, &rec.FinishedAt,
			&rec.RecordsIn, &rec.RecordsDeduped, &rec.RecordsDropped, &errs, &rec.Status)
		if err != nil {
			return nil, fmt.Errorf("scan load record: %w", err)
		}
		if rec.JobID, err = uuid.Parse(jobID); err != nil {
			return nil, fmt.Errorf("parse job id %q: %w", jobID, err)
		}
		if err := json.Unmarshal([]byte(errs), &rec.SourceErrors); err != nil {
			return nil, fmt.Errorf("unmarshal source errors for %s: %w", jobID, err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// Stats summarizes the active snapshot.
type Stats struct {
	Generation   int64          `json:"generation"`
	ItemCount    int            `json:"itemCount"`
	ThemeCounts  map[string]int `json:"themeCounts"`
	SourceCounts map[string]int `json:"sourceCounts"`
	AvgQuality   float64        `json:"avgQuality"`
	LastLoad     *LoadRecord    `json:"lastLoad,omitempty"`
}

// Stats computes summary statistics over the active snapshot.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	gen, err := s.ActiveGeneration(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return &Stats{ThemeCounts: map[string]int{}, SourceCounts: map[string]int{}}, nil
	}
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Generation:   gen,
		ThemeCounts:  make(map[string]int),
		SourceCounts: make(map[string]int),
	}

	var avg sql.NullFloat64
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), AVG(quality_score) FROM items WHERE generation = $1`, gen).
		Scan(&stats.ItemCount, &avg)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	stats.AvgQuality = avg.Float64

	rows, err := s.db.QueryContext(ctx,
		`SELECT theme, COUNT(*) FROM items WHERE generation = $1 AND theme <> '' GROUP BY theme`, gen)
	if err != nil {
		return nil, fmt.Errorf("count themes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var theme string
		var n int
		if err := rows.Scan(&theme, &n); err != nil {
			return nil, fmt.Errorf("scan theme count: %w", err)
		}
		stats.ThemeCounts[theme] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	srcRows, err := s.db.QueryContext(ctx,
		`SELECT source_name, COUNT(*) FROM items WHERE generation = $1 GROUP BY source_name`, gen)
	if err != nil {
		return nil, fmt.Errorf("count sources: %w", err)
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var source string
		var n int
		if err := srcRows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		stats.SourceCounts[source] = n
	}
	if err := srcRows.Err(); err != nil {
		return nil, err
	}

	history, err := s.LoadHistory(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		stats.LastLoad = history[0]
	}
	return stats, nil
}
