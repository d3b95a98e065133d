package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upInit, downInit)
}

func upInit(tx *sql.Tx) error {
	_, err := tx.Exec(`
	CREATE TABLE stories (
		id VARCHAR PRIMARY KEY,
		owner_id VARCHAR NOT NULL,
		owner_name VARCHAR NOT NULL DEFAULT '',
		owner_avatar_url VARCHAR NOT NULL DEFAULT '',
		content_type VARCHAR NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		background_hex VARCHAR NOT NULL DEFAULT '',
		media_url VARCHAR NOT NULL DEFAULT '',
		media_data BYTEA,
		privacy VARCHAR NOT NULL DEFAULT 'everyone',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX idx_stories_owner_id ON stories (owner_id);

	CREATE TABLE story_viewers (
		story_id VARCHAR NOT NULL REFERENCES stories (id) ON DELETE CASCADE,
		viewer_id VARCHAR NOT NULL,
		viewer_name VARCHAR NOT NULL DEFAULT '',
		viewed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (story_id, viewer_id)
	);
	`)
	if err != nil {
		return err
	}
	return nil
}

func downInit(tx *sql.Tx) error {
	_, err := tx.Exec(`
	DROP TABLE story_viewers;
	DROP TABLE stories;
	`)
	if err != nil {
		return err
	}
	return nil
}
