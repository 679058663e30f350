package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStorageUnavailable marks history reads/writes that failed because the
// underlying storage did. Fatal to the calling request, never to the process.
var ErrStorageUnavailable = errors.New("history storage unavailable")

var database *sql.DB

// HistoryEntry is one immutable persisted prediction. The store owns id and
// timestamp assignment; callers never supply them.
type HistoryEntry struct {
	ID         int64     `json:"id"`
	CallerID   int64     `json:"caller_id"`
	Text       string    `json:"text"`
	Label      string    `json:"label"`
	Confidence *float64  `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// InitDB opens the SQLite database and creates the history schema.
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	// One connection serializes all writes store-wide, which is enough for
	// the per-caller linearizability the history contract asks for.
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        caller_id INTEGER NOT NULL,
        text TEXT NOT NULL,
        label TEXT NOT NULL,
        confidence REAL,
        timestamp DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_history_caller ON history(caller_id);
    `

	if _, err = database.Exec(query); err != nil {
		return err
	}
	return database.Ping()
}

// Close releases the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	return database.Close()
}

// InsertHistory appends one history entry and returns it with the
// store-assigned id and timestamp. The write is a single atomic statement.
func InsertHistory(callerID int64, text, label string, confidence *float64) (HistoryEntry, error) {
	now := time.Now().UTC()

	res, err := database.Exec(`
        INSERT INTO history (caller_id, text, label, confidence, timestamp)
        VALUES (?, ?, ?, ?, ?)`,
		callerID, text, label, nullableFloat(confidence), now)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return HistoryEntry{
		ID:         id,
		CallerID:   callerID,
		Text:       text,
		Label:      label,
		Confidence: confidence,
		Timestamp:  now,
	}, nil
}

// QueryHistory returns a caller's entries in creation order. A caller with
// no entries gets an empty slice, not an error.
func QueryHistory(callerID int64) ([]HistoryEntry, error) {
	rows, err := database.Query(`
        SELECT id, caller_id, text, label, confidence, timestamp
        FROM history
        WHERE caller_id = ?
        ORDER BY id ASC`, callerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		var confidence sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.CallerID, &e.Text, &e.Label, &confidence, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if confidence.Valid {
			e.Confidence = &confidence.Float64
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	return entries, nil
}

// ClearHistory deletes every entry for every caller and reports how many
// rows went. This is the administrative global wipe; there is deliberately
// no per-caller variant.
func ClearHistory() (int64, error) {
	res, err := database.Exec(`DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return deleted, nil
}

func nullableFloat(p *float64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}
