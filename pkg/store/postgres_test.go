package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/tradetrust/pkg/contracts"
	"github.com/Mindburn-Labs/tradetrust/pkg/contracts/contractstest"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	s := NewPostgresStore(db)
	s.now = func() time.Time { return contractstest.Epoch }
	return s, mock
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	lite := &SQLStore{dialect: DialectSQLite}
	q := "SELECT a FROM t WHERE b = ? AND c = ?"
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS intent_audit_records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_intent_audit_user_created").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS verification_records").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_verification_receipt").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS settings").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PersistIntentAuditRecord(t *testing.T) {
	s, mock := newMockStore(t)
	rec := contractstest.AuditRecord(nil)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO intent_audit_records .* VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7, \$8\)`).
		WithArgs(rec.IntentID, rec.UserID, rec.ReceiptID, rec.ChainHash, "", rec.CreatedAt.UnixNano(), sqlmock.AnyArg(), contractstest.Epoch.UnixNano()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO settings`).
		WithArgs("intent_audit.latest."+rec.UserID, rec.IntentID, contractstest.Epoch.UnixNano()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.PersistIntentAuditRecord(context.Background(), rec))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PersistRollsBackOnProjectionFailure(t *testing.T) {
	s, mock := newMockStore(t)
	rec := contractstest.AuditRecord(nil)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO intent_audit_records`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO settings`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.PersistIntentAuditRecord(context.Background(), rec)
	require.ErrorContains(t, err, "latest projection")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PersistRefusesSealedRecord(t *testing.T) {
	s, mock := newMockStore(t)
	rec := contractstest.AuditRecord(nil)

	mock.ExpectBegin()
	mock.ExpectExec(`ON CONFLICT \(intent_id\) DO UPDATE SET .* WHERE intent_audit_records.settlement_id = ''`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.PersistIntentAuditRecord(context.Background(), rec)
	require.ErrorIs(t, err, ErrSealed)
	require.ErrorIs(t, err, contracts.ErrLineageAlreadyExtended)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceConflict(t *testing.T) {
	s, mock := newMockStore(t)
	base := contractstest.AuditRecord(nil)
	extended, err := base.WithCopytradeLineage(contractstest.Settlement())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE intent_audit_records`).
		WithArgs(extended.ChainHash, extended.SettlementID, sqlmock.AnyArg(), contractstest.Epoch.UnixNano(), extended.IntentID, base.ChainHash).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT chain_hash FROM intent_audit_records WHERE intent_id = \$1`).
		WithArgs(extended.IntentID).
		WillReturnRows(sqlmock.NewRows([]string{"chain_hash"}).AddRow(extended.ChainHash))
	mock.ExpectRollback()

	require.ErrorIs(t, s.ReplaceIntentAuditRecord(context.Background(), extended, base.ChainHash), ErrChainConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplaceSucceeds(t *testing.T) {
	s, mock := newMockStore(t)
	base := contractstest.AuditRecord(nil)
	extended, err := base.WithCopytradeLineage(contractstest.Settlement())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE intent_audit_records`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceIntentAuditRecord(context.Background(), extended, base.ChainHash))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAndLatest(t *testing.T) {
	s, mock := newMockStore(t)
	rec := contractstest.AuditRecord(nil)
	payload, err := contracts.EncodeIntentAuditRecord(rec)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT value FROM settings WHERE key = \$1`).
		WithArgs("intent_audit.latest." + rec.UserID).
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(rec.IntentID))
	mock.ExpectQuery(`SELECT record FROM intent_audit_records WHERE intent_id = \$1`).
		WithArgs(rec.IntentID).
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(string(payload)))

	got, err := s.LatestIntentAuditRecord(context.Background(), rec.UserID)
	require.NoError(t, err)
	assert.Equal(t, rec.ChainHash, got.ChainHash)

	mock.ExpectQuery(`SELECT record FROM intent_audit_records`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, err = s.GetIntentAuditRecord(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRejectsIncompatibleVersion(t *testing.T) {
	s, mock := newMockStore(t)
	rec := contractstest.AuditRecord(nil)
	rec.ContractVersion = "v2"
	payload, err := contracts.EncodeIntentAuditRecord(rec)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT record FROM intent_audit_records`).
		WillReturnRows(sqlmock.NewRows([]string{"record"}).AddRow(string(payload)))
	_, err = s.GetIntentAuditRecord(context.Background(), rec.IntentID)
	require.Error(t, err)
}

func TestPostgresStore_ListClampsLimit(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT record FROM intent_audit_records\s+WHERE user_id = \$1\s+ORDER BY created_unix_nano DESC`).
		WithArgs("user-a", MaxListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"record"}))

	got, err := s.ListIntentAuditRecords(context.Background(), "user-a", 10_000)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PersistVerificationRecord(t *testing.T) {
	s, mock := newMockStore(t)
	v := contractstest.Verification(contracts.StatusVerified, contractstest.Epoch)

	mock.ExpectExec(`INSERT INTO verification_records .* ON CONFLICT \(verification_id\) DO NOTHING`).
		WithArgs(v.VerificationID.String(), v.ReceiptID, "eigencloud_primary", "verified", v.VerifiedAt.UnixNano(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.PersistVerificationRecord(context.Background(), v))
	require.NoError(t, mock.ExpectationsWereMet())
}
