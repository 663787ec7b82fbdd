package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/tinytelemetry/piezodash/internal/model"
)

var (
	_ model.HistoryWriter = (*Store)(nil)
	_ model.HistoryReader = (*Store)(nil)
)

// InsertSampleBatch writes records in one transaction. When the batch fails
// it is retried row by row and rows that still fail are dropped and logged.
func (s *Store) InsertSampleBatch(records []model.HistoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.insertTx(ctx, records); err == nil {
		return nil
	}

	var failed int
	for _, r := range records {
		if err := s.insertTx(ctx, []model.HistoryRecord{r}); err != nil {
			failed++
			log.Printf("duckdb: dropping sample at %s: %v", r.Timestamp.Format(time.RFC3339Nano), err)
		}
	}
	if failed > 0 {
		log.Printf("duckdb: batch partially failed, %d/%d samples dropped", failed, len(records))
	}
	return nil
}

func (s *Store) insertTx(ctx context.Context, records []model.HistoryRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO samples (timestamp, adc, frequency, amplitude, status, read_error) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		var readErr any
		if r.ReadError != "" {
			readErr = r.ReadError
		}
		if _, err := stmt.ExecContext(ctx,
			r.Timestamp, nullable(r.ADC), nullable(r.Frequency), nullable(r.Amplitude),
			r.Status, readErr,
		); err != nil {
			return fmt.Errorf("sample insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// RecentSamples returns up to limit records, newest first.
func (s *Store) RecentSamples(limit int) ([]model.HistoryRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, adc, frequency, amplitude, status, read_error
		FROM samples ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HistoryRecord
	for rows.Next() {
		var (
			r              model.HistoryRecord
			adc, freq, amp sql.NullFloat64
			readErr        sql.NullString
		)
		if err := rows.Scan(&r.Timestamp, &adc, &freq, &amp, &r.Status, &readErr); err != nil {
			return nil, err
		}
		r.ADC = fromNull(adc)
		r.Frequency = fromNull(freq)
		r.Amplitude = fromNull(amp)
		r.ReadError = readErr.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// TotalSampleCount returns the number of stored records.
func (s *Store) TotalSampleCount() (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM samples").Scan(&n)
	return n, err
}

// StatusCounts returns the number of stored records per status.
func (s *Store) StatusCounts() (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM samples GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// DeleteBefore removes records older than cutoff and returns how many were
// deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM samples WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
