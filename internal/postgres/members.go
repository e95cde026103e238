// Package postgres implements the member store against PostgreSQL using
// pgx. Duplicate detection and commit are each one round trip per batch;
// per-record failures during commit are isolated with savepoints so one bad
// row never poisons the surrounding transaction.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parishkeep/parishkeep/internal/importer"
)

// dateLayout matches the canonical date format produced by the pipeline.
const dateLayout = "2006-01-02"

// MemberStore persists imported members in the members table.
type MemberStore struct {
	pool *pgxpool.Pool
}

// NewMemberStore creates a store backed by the given pool.
func NewMemberStore(pool *pgxpool.Pool) *MemberStore {
	return &MemberStore{pool: pool}
}

// LookupExistingEmails returns the subset of emails that already have a
// member record, as one ANY($1) query.
func (s *MemberStore) LookupExistingEmails(ctx context.Context, emails []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(emails))
	if len(emails) == 0 {
		return existing, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT lower(email) FROM members WHERE lower(email) = ANY($1)`,
		emails,
	)
	if err != nil {
		return nil, fmt.Errorf("lookup emails: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		existing[email] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return existing, nil
}

// CommitRecords writes the batch inside one transaction. Each record runs
// under its own savepoint; a constraint violation rolls back that record
// only and surfaces as a CommitFailed outcome.
func (s *MemberStore) CommitRecords(ctx context.Context, records []*importer.CanonicalRecord, policy importer.DuplicatePolicy) ([]importer.RecordOutcome, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	outcomes := make([]importer.RecordOutcome, 0, len(records))

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		out := importer.RecordOutcome{OriginRow: rec.OriginRow, Email: rec.Email()}

		savepoint := fmt.Sprintf("sp_%d", i)
		if _, err := tx.Exec(ctx, "SAVEPOINT "+savepoint); err != nil {
			return nil, fmt.Errorf("create savepoint: %w", err)
		}

		status, err := commitOne(ctx, tx, rec, policy)
		if err != nil {
			_, _ = tx.Exec(ctx, "ROLLBACK TO SAVEPOINT "+savepoint)
			out.Status = importer.CommitFailed
			out.Message = err.Error()
			outcomes = append(outcomes, out)
			continue
		}
		_, _ = tx.Exec(ctx, "RELEASE SAVEPOINT "+savepoint)

		out.Status = status
		outcomes = append(outcomes, out)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return outcomes, nil
}

// commitOne inserts a record, falling back to an update when the email
// already exists and the policy allows it. The ON CONFLICT target is the
// functional unique index on lower(email), so casing differences never
// bypass the duplicate check.
func commitOne(ctx context.Context, tx pgx.Tx, rec *importer.CanonicalRecord, policy importer.DuplicatePolicy) (importer.CommitStatus, error) {
	args := memberArgs(rec)

	tag, err := tx.Exec(ctx, `
		INSERT INTO members (
			email, first_name, last_name, phone, date_of_birth, gender,
			address, preferred_contact_method, ministry_interests, pledge_amount
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT ((lower(email))) DO NOTHING`,
		args...,
	)
	if err != nil {
		return "", fmt.Errorf("insert member: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return importer.CommitCreated, nil
	}

	if policy != importer.PolicyUpdate {
		return "", fmt.Errorf("member already exists")
	}

	// Merge: only overwrite columns the file actually provided.
	_, err = tx.Exec(ctx, `
		UPDATE members SET
			first_name               = COALESCE($2, first_name),
			last_name                = COALESCE($3, last_name),
			phone                    = COALESCE($4, phone),
			date_of_birth            = COALESCE($5, date_of_birth),
			gender                   = COALESCE($6, gender),
			address                  = COALESCE($7, address),
			preferred_contact_method = COALESCE($8, preferred_contact_method),
			ministry_interests       = COALESCE($9, ministry_interests),
			pledge_amount            = COALESCE($10, pledge_amount),
			updated_at               = now()
		WHERE lower(email) = $1`,
		args...,
	)
	if err != nil {
		return "", fmt.Errorf("update member: %w", err)
	}
	return importer.CommitUpdated, nil
}

// memberArgs converts a canonical record into the positional argument list
// shared by the insert and update statements.
func memberArgs(rec *importer.CanonicalRecord) []any {
	return []any{
		rec.Email(),
		textArg(rec, "firstName"),
		textArg(rec, "lastName"),
		textArg(rec, "phone"),
		dateArg(rec, "dateOfBirth"),
		textArg(rec, "gender"),
		textArg(rec, "address"),
		textArg(rec, "preferredContactMethod"),
		listArg(rec, "ministryInterests"),
		numericArg(rec, "pledgeAmount"),
	}
}

// textArg returns a pgtype.Text that is NULL when the field is absent.
func textArg(rec *importer.CanonicalRecord, key string) pgtype.Text {
	if v := rec.Text(key); v != "" {
		return pgtype.Text{String: v, Valid: true}
	}
	return pgtype.Text{Valid: false}
}

// dateArg returns a pgtype.Date that is NULL when the field is absent or
// not in canonical form.
func dateArg(rec *importer.CanonicalRecord, key string) pgtype.Date {
	v := rec.Text(key)
	if v == "" {
		return pgtype.Date{Valid: false}
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return pgtype.Date{Valid: false}
	}
	return pgtype.Date{Time: t, Valid: true}
}

// listArg returns the list value or nil for a NULL array column.
func listArg(rec *importer.CanonicalRecord, key string) []string {
	return rec.List(key)
}

// numericArg returns a pgtype.Numeric that is NULL when the field is absent.
func numericArg(rec *importer.CanonicalRecord, key string) pgtype.Numeric {
	d, ok := rec.Decimal(key)
	if !ok {
		return pgtype.Numeric{Valid: false}
	}
	var n pgtype.Numeric
	if err := n.Scan(d.String()); err != nil {
		return pgtype.Numeric{Valid: false}
	}
	return n
}
