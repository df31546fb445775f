package store

import (
	"context"
	"fmt"
)

// schemaVersion is bumped whenever a new migration is appended to
// migrations. migrate applies every migration above the database's
// current user_version in order, inside one transaction.
const schemaVersion = 1

var migrations = []string{
	// v1: initial schema for every spec §3 entity.
	`
	CREATE TABLE IF NOT EXISTS credentials (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		salt BLOB NOT NULL,
		time_cost INTEGER NOT NULL,
		memory_kib INTEGER NOT NULL,
		parallelism INTEGER NOT NULL,
		verifier_wrapped BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS owner_profiles (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		self_person_id TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS persons (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		is_self INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tags (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		color TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (owner_id, name)
	);

	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title_envelope_id TEXT NOT NULL,
		title_ciphertext BLOB NOT NULL,
		title_wrapped_dek BLOB NOT NULL,
		title_algo_tag TEXT NOT NULL,
		title_version INTEGER NOT NULL,
		body_envelope_id TEXT NOT NULL,
		body_ciphertext BLOB NOT NULL,
		body_wrapped_dek BLOB NOT NULL,
		body_algo_tag TEXT NOT NULL,
		body_version INTEGER NOT NULL,
		latitude REAL,
		longitude REAL,
		captured_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		archived_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_memories_owner_captured ON memories (owner_id, captured_at);

	CREATE TABLE IF NOT EXISTS sources (
		id TEXT PRIMARY KEY,
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		byte_size INTEGER NOT NULL DEFAULT 0,
		encrypted_size INTEGER NOT NULL DEFAULT 0,
		vault_path TEXT NOT NULL DEFAULT '',
		digest TEXT NOT NULL DEFAULT '',
		preservation_format TEXT NOT NULL DEFAULT '',
		file_dek_wrapped BLOB NOT NULL DEFAULT (x''),
		file_dek_algo_tag TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sources_memory ON sources (memory_id);
	CREATE INDEX IF NOT EXISTS idx_sources_digest ON sources (digest);

	CREATE TABLE IF NOT EXISTS search_tokens (
		id TEXT PRIMARY KEY,
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		owner_id TEXT NOT NULL,
		field TEXT NOT NULL,
		token BLOB NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_search_tokens_lookup ON search_tokens (owner_id, token);
	CREATE INDEX IF NOT EXISTS idx_search_tokens_memory ON search_tokens (memory_id, field);

	CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		source_memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		target_memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		provenance TEXT NOT NULL,
		confidence REAL NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		UNIQUE (source_memory_id, target_memory_id, kind, provenance)
	);

	CREATE TABLE IF NOT EXISTS memory_tags (
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		tag_id TEXT NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (memory_id, tag_id)
	);

	CREATE TABLE IF NOT EXISTS memory_persons (
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		person_id TEXT NOT NULL REFERENCES persons(id) ON DELETE CASCADE,
		provenance TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (memory_id, person_id, provenance)
	);

	CREATE TABLE IF NOT EXISTS suggestions (
		id TEXT PRIMARY KEY,
		memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		target_id TEXT NOT NULL DEFAULT '',
		label TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_suggestions_status ON suggestions (status);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		cited_memory_ids TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_messages_conv ON conversation_messages (conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS heartbeat_checkins (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		checked_in_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_heartbeat_checkins_owner ON heartbeat_checkins (owner_id, checked_in_at);

	CREATE TABLE IF NOT EXISTS heartbeat_alerts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		level TEXT NOT NULL,
		trigger_day TEXT NOT NULL,
		sent_at DATETIME NOT NULL,
		UNIQUE (owner_id, level, trigger_day)
	);

	CREATE TABLE IF NOT EXISTS testament_configs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL UNIQUE,
		threshold INTEGER NOT NULL,
		total_shares INTEGER NOT NULL,
		checkin_interval_days INTEGER NOT NULL,
		reminder_after_days INTEGER NOT NULL,
		urgent_after_days INTEGER NOT NULL,
		emergency_after_days INTEGER NOT NULL,
		keyholders_after_days INTEGER NOT NULL,
		inheritance_after_days INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS heirs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		share_index INTEGER NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		granted_at DATETIME NOT NULL,
		revoked_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_owner ON audit_logs (owner_id, created_at);

	CREATE TABLE IF NOT EXISTS loop_states (
		name TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL DEFAULT 1,
		last_run_at DATETIME,
		next_run_at DATETIME NOT NULL,
		consecutive_fails INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		claimed_at DATETIME,
		claim_token TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS vault_manifest (
		vault_path TEXT PRIMARY KEY,
		memory_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		digest TEXT NOT NULL,
		byte_size INTEGER NOT NULL,
		preservation_format TEXT NOT NULL DEFAULT '',
		file_dek_wrapped BLOB NOT NULL DEFAULT (x''),
		file_dek_algo_tag TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);
	`,
}

func (s *Store) migrate(ctx context.Context) error {
	var current int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}
	if current >= len(migrations) {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer tx.Rollback()

	for i := current; i < len(migrations); i++ {
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(migrations))); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}
