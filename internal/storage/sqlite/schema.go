package sqlite

// Schema creates the examples table. Rows are returned in insertion order by
// their rowid.
const Schema = `
CREATE TABLE IF NOT EXISTS examples (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT    NOT NULL UNIQUE,
	label      TEXT    NOT NULL,
	embedding  BLOB    NOT NULL,
	dimension  INTEGER NOT NULL,
	session_id TEXT,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_examples_label ON examples(label);
`
