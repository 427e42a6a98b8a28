package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
)

// Dialect selects placeholder syntax. The schema and upserts are shared.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS intent_audit_records (
	intent_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	receipt_id TEXT NOT NULL,
	chain_hash TEXT NOT NULL,
	settlement_id TEXT NOT NULL DEFAULT '',
	created_unix_nano BIGINT NOT NULL,
	record TEXT NOT NULL,
	updated_unix_nano BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_intent_audit_user_created
	ON intent_audit_records (user_id, created_unix_nano);
CREATE TABLE IF NOT EXISTS verification_records (
	verification_id TEXT PRIMARY KEY,
	receipt_id TEXT NOT NULL,
	backend TEXT NOT NULL,
	status TEXT NOT NULL,
	verified_unix_nano BIGINT NOT NULL,
	record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_verification_receipt
	ON verification_records (receipt_id, verified_unix_nano);
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_unix_nano BIGINT NOT NULL
);
`

const (
	upsertAuditSQL = `INSERT INTO intent_audit_records (intent_id, user_id, receipt_id, chain_hash, settlement_id, created_unix_nano, record, updated_unix_nano)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (intent_id) DO UPDATE SET
	user_id = EXCLUDED.user_id,
	receipt_id = EXCLUDED.receipt_id,
	chain_hash = EXCLUDED.chain_hash,
	settlement_id = EXCLUDED.settlement_id,
	created_unix_nano = EXCLUDED.created_unix_nano,
	record = EXCLUDED.record,
	updated_unix_nano = EXCLUDED.updated_unix_nano
WHERE intent_audit_records.settlement_id = '' OR intent_audit_records.chain_hash = EXCLUDED.chain_hash`

	upsertSettingSQL = `INSERT INTO settings (key, value, updated_unix_nano)
VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_unix_nano = EXCLUDED.updated_unix_nano`

	casAuditSQL = `UPDATE intent_audit_records
SET chain_hash = ?, settlement_id = ?, record = ?, updated_unix_nano = ?
WHERE intent_id = ? AND chain_hash = ?`

	existsAuditSQL = `SELECT chain_hash FROM intent_audit_records WHERE intent_id = ?`

	getAuditSQL = `SELECT record FROM intent_audit_records WHERE intent_id = ?`

	listAuditSQL = `SELECT record FROM intent_audit_records
ORDER BY created_unix_nano DESC, intent_id DESC
LIMIT ?`

	listAuditByUserSQL = `SELECT record FROM intent_audit_records
WHERE user_id = ?
ORDER BY created_unix_nano DESC, intent_id DESC
LIMIT ?`

	getSettingSQL = `SELECT value FROM settings WHERE key = ?`

	insertVerificationSQL = `INSERT INTO verification_records (verification_id, receipt_id, backend, status, verified_unix_nano, record)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (verification_id) DO NOTHING`

	listVerificationSQL = `SELECT record FROM verification_records
WHERE receipt_id = ?
ORDER BY verified_unix_nano ASC, verification_id ASC`
)

// SQLStore implements Store over database/sql for Postgres and SQLite.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

var _ Store = (*SQLStore)(nil)

// NewPostgresStore wraps an open lib/pq connection. Call Migrate before use.
func NewPostgresStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db, dialect: DialectPostgres, now: time.Now}
}

// NewSQLiteStore wraps an open modernc.org/sqlite connection and creates
// the schema.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: DialectSQLite, now: time.Now}
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Migrate creates tables and indexes if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) PersistIntentAuditRecord(ctx context.Context, rec contracts.IntentAuditRecord) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	payload, err := contracts.EncodeIntentAuditRecord(rec)
	if err != nil {
		return err
	}
	now := s.now().UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(upsertAuditSQL),
		rec.IntentID, rec.UserID, rec.ReceiptID, rec.ChainHash, rec.SettlementID,
		rec.CreatedAt.UnixNano(), string(payload), now,
	)
	if err != nil {
		return fmt.Errorf("store: upsert intent audit record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: upsert intent audit record: %w", err)
	}
	// The conflict guard skipped the update.
	if n == 0 {
		return ErrSealed
	}
	if _, err := tx.ExecContext(ctx, s.rebind(upsertSettingSQL), LatestKey(rec.UserID), rec.IntentID, now); err != nil {
		return fmt.Errorf("store: update latest projection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (s *SQLStore) ReplaceIntentAuditRecord(ctx context.Context, rec contracts.IntentAuditRecord, prevChainHash string) error {
	if err := checkRecord(rec); err != nil {
		return err
	}
	payload, err := contracts.EncodeIntentAuditRecord(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(casAuditSQL),
		rec.ChainHash, rec.SettlementID, string(payload), s.now().UnixNano(), rec.IntentID, prevChainHash)
	if err != nil {
		return fmt.Errorf("store: replace intent audit record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: replace intent audit record: %w", err)
	}
	if n == 0 {
		var current string
		err := tx.QueryRowContext(ctx, s.rebind(existsAuditSQL), rec.IntentID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("store: replace intent audit record: %w", err)
		}
		return ErrChainConflict
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

func (s *SQLStore) GetIntentAuditRecord(ctx context.Context, intentID string) (*contracts.IntentAuditRecord, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, s.rebind(getAuditSQL), intentID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get intent audit record: %w", err)
	}
	return contracts.DecodeIntentAuditRecord(payload)
}

func (s *SQLStore) ListIntentAuditRecords(ctx context.Context, userID string, limit int) ([]contracts.IntentAuditRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if userID == "" {
		rows, err = s.db.QueryContext(ctx, s.rebind(listAuditSQL), clampLimit(limit))
	} else {
		rows, err = s.db.QueryContext(ctx, s.rebind(listAuditByUserSQL), userID, clampLimit(limit))
	}
	if err != nil {
		return nil, fmt.Errorf("store: list intent audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []contracts.IntentAuditRecord{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: list intent audit records: %w", err)
		}
		rec, err := contracts.DecodeIntentAuditRecord(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list intent audit records: %w", err)
	}
	return out, nil
}

func (s *SQLStore) LatestIntentAuditRecord(ctx context.Context, userID string) (*contracts.IntentAuditRecord, error) {
	if err := requireID("user_id", userID); err != nil {
		return nil, err
	}
	var intentID string
	err := s.db.QueryRowContext(ctx, s.rebind(getSettingSQL), LatestKey(userID)).Scan(&intentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read latest projection: %w", err)
	}
	return s.GetIntentAuditRecord(ctx, intentID)
}

func (s *SQLStore) PersistVerificationRecord(ctx context.Context, rec contracts.VerificationRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return &contracts.SerializationError{Artifact: "verification_record", Err: err}
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(insertVerificationSQL),
		rec.VerificationID.String(), rec.ReceiptID, string(rec.Backend), string(rec.Status),
		rec.VerifiedAt.UnixNano(), string(payload),
	); err != nil {
		return fmt.Errorf("store: insert verification record: %w", err)
	}
	return nil
}

func (s *SQLStore) ListVerificationRecords(ctx context.Context, receiptID string) ([]contracts.VerificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(listVerificationSQL), receiptID)
	if err != nil {
		return nil, fmt.Errorf("store: list verification records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []contracts.VerificationRecord{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("store: list verification records: %w", err)
		}
		var rec contracts.VerificationRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("store: decode verification record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list verification records: %w", err)
	}
	return out, nil
}
