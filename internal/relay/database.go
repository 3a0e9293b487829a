package relay

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database holding relay analytics
type DB struct {
	conn *sql.DB
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
	CREATE TABLE IF NOT EXISTS relay_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		relay_id INTEGER,
		session_id TEXT,
		data TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_relay_events_type ON relay_events(event_type);
	CREATE INDEX IF NOT EXISTS idx_relay_events_session ON relay_events(session_id);
	`)
	return err
}

// EventCounts returns how many of each event type have been recorded
func (db *DB) EventCounts() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT event_type, COUNT(*) FROM relay_events GROUP BY event_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			return nil, err
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// SessionIDs returns the distinct connection sessions that were assigned relayID
func (db *DB) SessionIDs(relayID int) ([]string, error) {
	rows, err := db.conn.Query(
		`SELECT DISTINCT session_id FROM relay_events WHERE relay_id = ? AND session_id IS NOT NULL`,
		relayID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		out = append(out, sid)
	}
	return out, rows.Err()
}
