package importer

import (
	"context"
	"fmt"
)

// DuplicatePolicy is the caller-chosen strategy for rows whose email already
// exists in the member store.
type DuplicatePolicy string

const (
	// PolicySkip excludes existing-email records from commit.
	PolicySkip DuplicatePolicy = "skip"
	// PolicyUpdate merges existing-email records into the stored record.
	PolicyUpdate DuplicatePolicy = "update"
)

// ParsePolicy parses a policy name; an empty string means PolicySkip.
func ParsePolicy(s string) (DuplicatePolicy, error) {
	switch DuplicatePolicy(s) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyUpdate:
		return PolicyUpdate, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (use skip or update)", s)
	}
}

// CommitStatus is the per-record outcome of a commit.
type CommitStatus string

const (
	CommitCreated CommitStatus = "created"
	CommitUpdated CommitStatus = "updated"
	CommitFailed  CommitStatus = "failed"
)

// RecordOutcome reports what happened to one record during commit.
type RecordOutcome struct {
	OriginRow int
	Email     string
	Status    CommitStatus
	Message   string // set when Status is CommitFailed
}

// MemberStore is the persistence collaborator consumed by the pipeline. It
// is injected into the Importer; the pipeline never reaches into ambient
// state.
//
// Both methods are single batched round trips. CommitRecords reports
// per-record failures (e.g. a constraint violation unrelated to email)
// through RecordOutcome and keeps committing the remainder; its error return
// is reserved for failures of the call itself.
type MemberStore interface {
	LookupExistingEmails(ctx context.Context, emails []string) (map[string]struct{}, error)
	CommitRecords(ctx context.Context, records []*CanonicalRecord, policy DuplicatePolicy) ([]RecordOutcome, error)
}
