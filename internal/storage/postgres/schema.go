package postgres

// Schema creates the examples table. All statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS examples (
	seq        BIGSERIAL PRIMARY KEY,
	id         TEXT        NOT NULL UNIQUE,
	label      TEXT        NOT NULL,
	embedding  BYTEA       NOT NULL,
	dimension  INTEGER     NOT NULL,
	session_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_examples_label ON examples(label);
`

// MigrationPgvector adds a pgvector copy of each embedding. Applied only when
// the vector extension is installed.
const MigrationPgvector = `
ALTER TABLE examples ADD COLUMN IF NOT EXISTS embedding_vec vector;
`
