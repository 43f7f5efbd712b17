package connectivity

import "database/sql"

// Schema is the routes table. Strategies:
//   - "local": the in-process handler registered with RegisterLocal.
//   - "http":  POST to the endpoint through HTTPFactory.
//   - "noop":  succeed without doing anything (a page muted from broadcasts).
//
// Any write bumps PRAGMA data_version, which Watch polls.
const Schema = `
CREATE TABLE IF NOT EXISTS routes (
    service_name TEXT PRIMARY KEY,
    strategy     TEXT NOT NULL CHECK(strategy IN ('local', 'http', 'noop')),
    endpoint     TEXT,
    config       TEXT DEFAULT '{}',
    updated_at   INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TRIGGER IF NOT EXISTS trg_routes_updated_at
AFTER UPDATE ON routes
FOR EACH ROW
BEGIN
    UPDATE routes SET updated_at = strftime('%s', 'now') WHERE service_name = NEW.service_name;
END;
`

// Init creates the routes table if it doesn't exist.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
