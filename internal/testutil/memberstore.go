// Package testutil provides in-memory collaborators for exercising the
// import pipeline without a database.
package testutil

import (
	"context"
	"sync"

	"github.com/parishkeep/parishkeep/internal/importer"
)

// InMemoryMemberStore implements importer.MemberStore against a map keyed by
// normalized email. It records call counts so tests can assert the batched
// single-round-trip contract.
type InMemoryMemberStore struct {
	mu sync.Mutex

	// Members holds stored records keyed by normalized email.
	Members map[string]map[string]interface{}

	// FailEmails maps an email to a failure message; committing that record
	// produces a CommitFailed outcome instead of a write.
	FailEmails map[string]string

	// LookupErr, when set, is returned by LookupExistingEmails.
	LookupErr error

	// CommitErr, when set, is returned by CommitRecords before any write.
	CommitErr error

	LookupCalls int
	CommitCalls int
}

// NewInMemoryMemberStore returns an empty store.
func NewInMemoryMemberStore() *InMemoryMemberStore {
	return &InMemoryMemberStore{
		Members:    make(map[string]map[string]interface{}),
		FailEmails: make(map[string]string),
	}
}

// Seed stores a record under the given email.
func (s *InMemoryMemberStore) Seed(email string, values map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if values == nil {
		values = map[string]interface{}{"email": email}
	}
	s.Members[email] = values
}

// Count returns the number of stored members.
func (s *InMemoryMemberStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Members)
}

// Get returns the stored values for an email.
func (s *InMemoryMemberStore) Get(email string) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Members[email]
	return v, ok
}

// LookupExistingEmails reports which of the given emails are already stored.
func (s *InMemoryMemberStore) LookupExistingEmails(_ context.Context, emails []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LookupCalls++
	if s.LookupErr != nil {
		return nil, s.LookupErr
	}

	existing := make(map[string]struct{})
	for _, email := range emails {
		if _, ok := s.Members[email]; ok {
			existing[email] = struct{}{}
		}
	}
	return existing, nil
}

// CommitRecords writes records into the map, honoring the duplicate policy.
func (s *InMemoryMemberStore) CommitRecords(_ context.Context, records []*importer.CanonicalRecord, policy importer.DuplicatePolicy) ([]importer.RecordOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.CommitCalls++
	if s.CommitErr != nil {
		return nil, s.CommitErr
	}

	outcomes := make([]importer.RecordOutcome, 0, len(records))
	for _, rec := range records {
		email := rec.Email()
		out := importer.RecordOutcome{OriginRow: rec.OriginRow, Email: email}

		if msg, ok := s.FailEmails[email]; ok {
			out.Status = importer.CommitFailed
			out.Message = msg
			outcomes = append(outcomes, out)
			continue
		}

		existing, exists := s.Members[email]
		switch {
		case exists && policy == importer.PolicyUpdate:
			for k, v := range rec.Values {
				existing[k] = v
			}
			out.Status = importer.CommitUpdated
		case exists:
			out.Status = importer.CommitFailed
			out.Message = "member already exists"
		default:
			values := make(map[string]interface{}, len(rec.Values))
			for k, v := range rec.Values {
				values[k] = v
			}
			s.Members[email] = values
			out.Status = importer.CommitCreated
		}
		outcomes = append(outcomes, out)
	}

	return outcomes, nil
}
