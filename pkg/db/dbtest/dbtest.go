// Package dbtest opens throwaway in-memory SQLite databases carrying the
// marketplace schema for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hiddengems/hiddengems-backend/pkg/db"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT,
		full_name TEXT NOT NULL,
		phone_number TEXT,
		avatar_url TEXT,
		country TEXT,
		role TEXT NOT NULL DEFAULT 'visitor',
		oauth_provider TEXT,
		oauth_subject TEXT,
		last_login_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE gems (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		country TEXT NOT NULL,
		city TEXT NOT NULL,
		address TEXT,
		latitude REAL,
		longitude REAL,
		phone TEXT,
		email TEXT,
		website TEXT,
		instagram TEXT,
		tags TEXT NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'pending',
		tier TEXT NOT NULL DEFAULT 'standard',
		rejection_reason TEXT,
		view_count INTEGER NOT NULL DEFAULT 0,
		rating_avg REAL NOT NULL DEFAULT 0,
		rating_count INTEGER NOT NULL DEFAULT 0,
		term_start_at DATETIME,
		term_end_at DATETIME,
		expiry_notified_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_gems_slug ON gems(slug)`,
	`CREATE TABLE gem_media (
		id TEXT PRIMARY KEY,
		gem_id TEXT NOT NULL REFERENCES gems(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		url TEXT NOT NULL,
		public_id TEXT NOT NULL,
		is_cover BOOLEAN NOT NULL DEFAULT 0,
		sequence INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME
	)`,
	`CREATE TABLE ratings (
		id TEXT PRIMARY KEY,
		gem_id TEXT NOT NULL REFERENCES gems(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		score INTEGER NOT NULL CHECK (score BETWEEN 1 AND 5),
		comment TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_ratings_gem_user ON ratings(gem_id, user_id)`,
	`CREATE TABLE favorites (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		gem_id TEXT NOT NULL REFERENCES gems(id) ON DELETE CASCADE,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_favorites_user_gem ON favorites(user_id, gem_id)`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		gem_id TEXT REFERENCES gems(id) ON DELETE SET NULL,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount NUMERIC NOT NULL,
		currency TEXT NOT NULL DEFAULT 'KES',
		purpose TEXT NOT NULL,
		tier TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		provider TEXT NOT NULL DEFAULT 'mpesa',
		phone_number TEXT NOT NULL,
		checkout_request_id TEXT UNIQUE,
		merchant_request_id TEXT,
		mpesa_receipt TEXT,
		result_code INTEGER,
		result_desc TEXT,
		term_start_at DATETIME NOT NULL,
		term_end_at DATETIME NOT NULL,
		completed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		data BLOB,
		read_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE page_views (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		gem_id TEXT,
		session_id TEXT,
		country TEXT,
		referrer TEXT,
		user_agent TEXT,
		viewed_at DATETIME NOT NULL
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		published_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns a fresh in-memory database with the full schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// A single connection keeps the shared in-memory database alive and
	// serialises writers the way sqlite expects.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return conn
}

// Client wraps Open in the db.Client used by services.
func Client(t testing.TB) *db.Client {
	t.Helper()
	return db.Wrap(Open(t))
}
