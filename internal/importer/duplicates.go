package importer

// duplicates.go flags email collisions, both within the uploaded file and
// against the member store. The intra-batch pass is order-sensitive and runs
// serially over records in original row order regardless of how rows were
// validated; the store check is one batched lookup.

import (
	"context"
	"fmt"

	"github.com/samber/lo"
)

// DuplicateDetector resolves duplicate status for a batch of records.
type DuplicateDetector struct {
	store MemberStore
}

// NewDuplicateDetector returns a detector backed by the given store.
func NewDuplicateDetector(store MemberStore) *DuplicateDetector {
	return &DuplicateDetector{store: store}
}

// MarkBatch walks records in original row order and marks every occurrence
// of an already-seen email as StatusDuplicateInBatch. The first occurrence
// is unaffected. One diagnostic is produced per duplicate occurrence,
// attached to the later row.
func (d *DuplicateDetector) MarkBatch(records []*CanonicalRecord) []RowError {
	seen := make(map[string]int, len(records))
	var errs []RowError

	for _, rec := range records {
		email := rec.Email()
		if email == "" {
			continue
		}
		if first, ok := seen[email]; ok {
			rec.Status = StatusDuplicateInBatch
			errs = append(errs, RowError{
				RowNumber: rec.OriginRow,
				Field:     "email",
				Kind:      KindDuplicate,
				Message:   fmt.Sprintf("duplicate of row %d in this file", first),
			})
			continue
		}
		seen[email] = rec.OriginRow
	}

	return errs
}

// MarkExisting performs one batched lookup and classifies each record as
// StatusExistsInStore or StatusNew. Records already marked as in-batch
// duplicates are left alone.
func (d *DuplicateDetector) MarkExisting(ctx context.Context, records []*CanonicalRecord) error {
	candidates := lo.Filter(records, func(r *CanonicalRecord, _ int) bool {
		return r.Status != StatusDuplicateInBatch
	})
	if len(candidates) == 0 {
		return nil
	}

	emails := lo.Uniq(lo.Map(candidates, func(r *CanonicalRecord, _ int) string {
		return r.Email()
	}))

	existing, err := d.store.LookupExistingEmails(ctx, emails)
	if err != nil {
		return fmt.Errorf("lookup existing emails: %w", err)
	}

	for _, rec := range candidates {
		if _, ok := existing[rec.Email()]; ok {
			rec.Status = StatusExistsInStore
		} else {
			rec.Status = StatusNew
		}
	}

	return nil
}
