package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect initializes the database connection and runs migrations. Inserts into the
// message tables are announced on feedChannel via pg_notify.
func Connect(dsn, feedChannel string, log *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if err := runMigrations(db, feedChannel); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	log.Info("database migrations applied", zap.String("feed_channel", feedChannel))

	return db, nil
}

func runMigrations(db *sqlx.DB, feedChannel string) error {
	for _, m := range migrations(feedChannel) {
		if _, err := db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

func migrations(feedChannel string) []string {
	channel := pq.QuoteLiteral(feedChannel)
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            email TEXT NOT NULL UNIQUE,
            display_name TEXT,
            role TEXT NOT NULL DEFAULT 'trainee' CHECK (role IN ('trainer', 'trainee')),
            avatar_url TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS room_messages (
            id TEXT PRIMARY KEY,
            author_id TEXT NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            attachment_url TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS messages (
            id TEXT PRIMARY KEY,
            author_id TEXT NOT NULL,
            recipient_id TEXT,
            plan_id TEXT,
            body TEXT NOT NULL DEFAULT '',
            attachment_url TEXT,
            read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK ((recipient_id IS NULL) <> (plan_id IS NULL))
        );`,
		`CREATE INDEX IF NOT EXISTS messages_recipient_idx ON messages (recipient_id, author_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS messages_plan_idx ON messages (plan_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS room_messages_created_idx ON room_messages (created_at DESC);`,
		`CREATE OR REPLACE FUNCTION feed_notify() RETURNS trigger AS $$
        BEGIN
            PERFORM pg_notify(TG_ARGV[0], jsonb_build_object('table', TG_TABLE_NAME, 'row', to_jsonb(NEW) - 'body' - 'attachment_url')::text);
            RETURN NEW;
        END;
        $$ LANGUAGE plpgsql;`,
		`DROP TRIGGER IF EXISTS messages_feed_notify ON messages;`,
		`CREATE TRIGGER messages_feed_notify AFTER INSERT ON messages
            FOR EACH ROW EXECUTE FUNCTION feed_notify(` + channel + `);`,
		`DROP TRIGGER IF EXISTS room_messages_feed_notify ON room_messages;`,
		`CREATE TRIGGER room_messages_feed_notify AFTER INSERT ON room_messages
            FOR EACH ROW EXECUTE FUNCTION feed_notify(` + channel + `);`,
	}
}
