package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"docverify/internal/document/models"
	"docverify/internal/platform/database"
	"docverify/pkg/domain"
	"docverify/pkg/platform/sentinel"
	txcontext "docverify/pkg/platform/tx"
)

const defaultTimeout = 2 * time.Second

// Store persists documents in the documents table. Every call is bounded by
// the store timeout; database failures surface as sentinel.ErrUnavailable so
// callers never mistake them for a missing record.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

func New(db *sql.DB, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{db: db, timeout: timeout}
}

const selectColumns = `
	id, document_type, issued_at, issuer_office, issued_by, status,
	canonical_version, applicant_salt, applicant_digest, content_hash,
	signature, key_id, algorithm, verification_code, qr_payload,
	revoked_at, revoke_reason, supersedes`

func (s *Store) Create(ctx context.Context, rec *models.DocumentRecord) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	digest, err := json.Marshal(rec.ApplicantDigest)
	if err != nil {
		return fmt.Errorf("marshal applicant digest: %w", err)
	}
	var supersedes *uuid.UUID
	if rec.Supersedes != "" {
		u, err := uuid.Parse(rec.Supersedes)
		if err != nil {
			return fmt.Errorf("supersedes id: %w", err)
		}
		supersedes = &u
	}

	_, err = txcontext.Pick(ctx, s.db).ExecContext(ctx, `
		INSERT INTO documents (`+selectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		uuid.UUID(rec.ID),
		rec.DocumentType.String(),
		rec.IssuedAt,
		rec.IssuerOffice,
		rec.IssuedBy,
		string(rec.Status),
		rec.CanonicalVersion,
		rec.ApplicantSalt,
		digest,
		rec.ContentHash,
		rec.Signature,
		rec.KeyID,
		rec.Algorithm,
		rec.VerificationCode,
		rec.QRPayload,
		rec.RevokedAt,
		rec.RevokeReason,
		supersedes,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return unavailable("create document", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id domain.DocumentID) (*models.DocumentRecord, error) {
	return s.findOne(ctx, "find document by id", `WHERE id = $1`, uuid.UUID(id))
}

func (s *Store) FindByCode(ctx context.Context, code string) (*models.DocumentRecord, error) {
	return s.findOne(ctx, "find document by code", `WHERE verification_code = $1`, code)
}

func (s *Store) FindByContentHash(ctx context.Context, hash string) (*models.DocumentRecord, error) {
	return s.findOne(ctx, "find document by hash", `WHERE content_hash = $1`, hash)
}

func (s *Store) ExistsCode(ctx context.Context, code string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var exists bool
	err := txcontext.Pick(ctx, s.db).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM documents WHERE verification_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, unavailable("check verification code", err)
	}
	return exists, nil
}

// RevokeIfActive is a compare-and-swap on status: only one concurrent caller
// sees the row transition.
func (s *Store) RevokeIfActive(ctx context.Context, id domain.DocumentID, at time.Time, reason string) (*models.DocumentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `
		UPDATE documents
		SET status = 'revoked', revoked_at = $2, revoke_reason = $3
		WHERE id = $1 AND status = 'active'
		RETURNING `+selectColumns,
		uuid.UUID(id), at.UTC(), reason)
	rec, err := scanDocument(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("revoke document", err)
	}
	// No row changed: either missing or not active.
	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return nil, findErr
	}
	return nil, sentinel.ErrInvalidState
}

func (s *Store) findOne(ctx context.Context, op, where string, arg any) (*models.DocumentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	row := txcontext.Pick(ctx, s.db).QueryRowContext(ctx, `SELECT `+selectColumns+` FROM documents `+where, arg)
	rec, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, unavailable(op, err)
	}
	return rec, nil
}

func scanDocument(row *sql.Row) (*models.DocumentRecord, error) {
	var (
		rec        models.DocumentRecord
		id         uuid.UUID
		docType    string
		status     string
		digest     []byte
		revokedAt  sql.NullTime
		supersedes *uuid.UUID
	)
	err := row.Scan(
		&id,
		&docType,
		&rec.IssuedAt,
		&rec.IssuerOffice,
		&rec.IssuedBy,
		&status,
		&rec.CanonicalVersion,
		&rec.ApplicantSalt,
		&digest,
		&rec.ContentHash,
		&rec.Signature,
		&rec.KeyID,
		&rec.Algorithm,
		&rec.VerificationCode,
		&rec.QRPayload,
		&revokedAt,
		&rec.RevokeReason,
		&supersedes,
	)
	if err != nil {
		return nil, err
	}
	rec.ID = domain.DocumentID(id)
	rec.DocumentType = domain.DocumentType(docType)
	rec.Status = models.Status(status)
	rec.IssuedAt = rec.IssuedAt.UTC()
	if err := json.Unmarshal(digest, &rec.ApplicantDigest); err != nil {
		return nil, fmt.Errorf("unmarshal applicant digest: %w", err)
	}
	if revokedAt.Valid {
		t := revokedAt.Time.UTC()
		rec.RevokedAt = &t
	}
	if supersedes != nil {
		rec.Supersedes = supersedes.String()
	}
	return &rec, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(sentinel.ErrUnavailable, err))
}

// TxRunner runs document mutations and their compliance audit rows in one
// database transaction.
type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, r.db, fn)
}
