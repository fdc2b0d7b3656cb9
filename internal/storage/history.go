package storage

import (
	"time"
)

// timeLayout keeps stored timestamps fixed-width so they compare as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// TickRecord is one committed tick controller transition.
type TickRecord struct {
	ID         int64     `json:"id"`
	Tick       int64     `json:"tick"`
	Generation uint64    `json:"generation"`
	State      string    `json:"state"`
	ErrorCode  string    `json:"errorCode,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// TickAggregate summarizes transitions into one state.
type TickAggregate struct {
	State    string `json:"state"`
	Count    int64  `json:"count"`
	LastTick int64  `json:"lastTick"`
}

// RecordTick persists one transition.
func (db *DB) RecordTick(tick int64, generation uint64, state, errorCode string) error {
	_, err := db.Exec(`
		INSERT INTO tick_history (tick, generation, state, error_code, recorded_at)
		VALUES (?, ?, ?, ?, ?)
	`, tick, int64(generation), state, errorCode, time.Now().UTC().Format(timeLayout))
	return err
}

// RecentTicks returns the newest records first.
func (db *DB) RecentTicks(limit int) ([]TickRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, tick, generation, state, error_code, recorded_at
		FROM tick_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []TickRecord{}
	for rows.Next() {
		var (
			r          TickRecord
			generation int64
			recordedAt string
		)
		if err := rows.Scan(&r.ID, &r.Tick, &generation, &r.State, &r.ErrorCode, &recordedAt); err != nil {
			return nil, err
		}
		r.Generation = uint64(generation)
		r.RecordedAt, _ = time.Parse(timeLayout, recordedAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// TickAggregates counts transitions per state since the given time.
func (db *DB) TickAggregates(since time.Time) (map[string]*TickAggregate, error) {
	rows, err := db.Query(`
		SELECT state, COUNT(*), MAX(tick)
		FROM tick_history
		WHERE recorded_at >= ?
		GROUP BY state
	`, since.UTC().Format(timeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]*TickAggregate)
	for rows.Next() {
		var agg TickAggregate
		if err := rows.Scan(&agg.State, &agg.Count, &agg.LastTick); err != nil {
			return nil, err
		}
		result[agg.State] = &agg
	}
	return result, rows.Err()
}

// CleanupTickHistory deletes records older than the cutoff.
func (db *DB) CleanupTickHistory(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(timeLayout)
	res, err := db.Exec(`DELETE FROM tick_history WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
