package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create sessions and messages",
		SQL: `
			CREATE TABLE sessions (
				id           TEXT PRIMARY KEY,
				user_id      TEXT NOT NULL,
				title        TEXT NOT NULL DEFAULT '',
				itinerary    TEXT,
				created_at   TEXT NOT NULL,
				modified_at  TEXT NOT NULL
			);

			CREATE INDEX idx_sessions_user ON sessions (user_id, modified_at);

			CREATE TABLE messages (
				seq          INTEGER PRIMARY KEY AUTOINCREMENT,
				id           TEXT NOT NULL UNIQUE,
				session_id   TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
				role         TEXT NOT NULL,
				content      TEXT NOT NULL,
				created_at   TEXT NOT NULL
			);

			CREATE INDEX idx_messages_session ON messages (session_id, seq);
		`,
	},
	{
		Version: 2,
		Name:    "create points of interest with FTS5",
		SQL: `
			CREATE TABLE pois (
				id             TEXT PRIMARY KEY,
				name           TEXT NOT NULL,
				city           TEXT NOT NULL,
				description    TEXT NOT NULL DEFAULT '',
				longitude      REAL NOT NULL DEFAULT 0,
				latitude       REAL NOT NULL DEFAULT 0,
				rank_in_city   INTEGER NOT NULL DEFAULT 0,
				rank_in_china  INTEGER NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_pois_city ON pois (city, rank_in_city);

			CREATE VIRTUAL TABLE pois_fts USING fts5(
				name,
				description,
				content='pois',
				content_rowid='rowid'
			);

			CREATE TRIGGER pois_ai AFTER INSERT ON pois BEGIN
				INSERT INTO pois_fts(rowid, name, description)
				VALUES (new.rowid, new.name, new.description);
			END;

			CREATE TRIGGER pois_ad AFTER DELETE ON pois BEGIN
				INSERT INTO pois_fts(pois_fts, rowid, name, description)
				VALUES ('delete', old.rowid, old.name, old.description);
			END;

			CREATE TRIGGER pois_au AFTER UPDATE ON pois BEGIN
				INSERT INTO pois_fts(pois_fts, rowid, name, description)
				VALUES ('delete', old.rowid, old.name, old.description);
				INSERT INTO pois_fts(rowid, name, description)
				VALUES (new.rowid, new.name, new.description);
			END;
		`,
	},
}
