package importer

// importer.go sequences the pipeline phases and aggregates the final
// ImportResult.
//
// Abort convention: Run returns (nil, error) for whole-batch failures —
// *StructuralError from parsing, *MappingError from the mapping check, a
// context error on cancellation, or a store error from the batched
// lookup/commit calls themselves. No ImportResult is produced in those
// cases. Once validation starts, failures are per-row and Run always reaches
// a result.

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Phase identifies a stage of the import state machine.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseParsing    Phase = "parsing"
	PhaseMapping    Phase = "mapping"
	PhaseValidating Phase = "validating"
	PhaseDuplicates Phase = "duplicates"
	PhaseCommitting Phase = "committing"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// ImportResult is the aggregated outcome of a completed (non-aborted)
// import. Total always equals Imported+Updated+Skipped+Failed.
type ImportResult struct {
	Total      int        `json:"total"`
	Imported   int        `json:"imported"`
	Updated    int        `json:"updated"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Duplicates int        `json:"duplicates"`
	Errors     []RowError `json:"errors"`
}

// Options configures one import invocation.
type Options struct {
	// Mapping holds explicit header -> canonical key overrides, merged over
	// the auto-detected mapping.
	Mapping map[string]string

	// Policy decides what happens to records whose email already exists in
	// the store. Zero value means PolicySkip.
	Policy DuplicatePolicy

	// RequiredFields overrides the catalog's default required keys. Leave
	// nil for the defaults.
	RequiredFields []string

	// Concurrency bounds the parallel row validation/transformation workers.
	// Zero means GOMAXPROCS. Duplicate detection is always a serial pass in
	// original row order.
	Concurrency int

	// Progress, when set, receives each phase transition.
	Progress func(Phase)
}

func (o *Options) policy() DuplicatePolicy {
	if o.Policy == "" {
		return PolicySkip
	}
	return o.Policy
}

func (o *Options) required() []string {
	if o.RequiredFields != nil {
		return o.RequiredFields
	}
	return DefaultRequiredKeys()
}

func (o *Options) workers() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return runtime.GOMAXPROCS(0)
}

func (o *Options) report(p Phase) {
	if o.Progress != nil {
		o.Progress(p)
	}
}

// Importer runs member CSV imports against an injected MemberStore.
type Importer struct {
	store   MemberStore
	catalog []CanonicalField
	logger  *slog.Logger
}

// New creates an Importer using the default member catalog.
func New(store MemberStore, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:   store,
		catalog: Catalog(),
		logger:  logger,
	}
}

// Catalog returns the catalog this importer maps headers onto.
func (imp *Importer) Catalog() []CanonicalField {
	out := make([]CanonicalField, len(imp.catalog))
	copy(out, imp.catalog)
	return out
}

// Run executes the full pipeline and commits surviving records.
func (imp *Importer) Run(ctx context.Context, data []byte, opts Options) (*ImportResult, error) {
	return imp.run(ctx, data, opts, true)
}

// Analyze executes the pipeline without committing: the returned result
// predicts what Run would do. Nothing is written to the store; the only
// store interaction is the existing-email lookup.
func (imp *Importer) Analyze(ctx context.Context, data []byte, opts Options) (*ImportResult, error) {
	return imp.run(ctx, data, opts, false)
}

func (imp *Importer) run(ctx context.Context, data []byte, opts Options, commit bool) (*ImportResult, error) {
	started := time.Now()
	policy := opts.policy()

	opts.report(PhaseParsing)
	tf, err := Tokenize(data)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts.report(PhaseMapping)
	mapping, err := ResolveMapping(tf.Header.Fields, imp.catalog, opts.Mapping)
	if err != nil {
		return nil, err
	}
	required := opts.required()
	if missing := mapping.Missing(required); len(missing) > 0 {
		return nil, &MappingError{MissingRequired: missing}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &ImportResult{
		Total:  len(tf.Rows) + len(tf.BadRows),
		Errors: append([]RowError(nil), tf.BadRows...),
		Failed: len(tf.BadRows),
	}

	opts.report(PhaseValidating)
	records, rowErrs := imp.validateAndTransform(ctx, tf.Rows, mapping, required, opts.workers())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, errs := range rowErrs {
		if len(errs) > 0 {
			result.Failed++
			result.Errors = append(result.Errors, errs...)
		}
	}

	// Keep valid records in original row order; parallel workers wrote into
	// index-addressed slots so completion order cannot reorder them.
	valid := lo.Filter(records, func(r *CanonicalRecord, _ int) bool { return r != nil })

	opts.report(PhaseDuplicates)
	detector := NewDuplicateDetector(imp.store)
	dupErrs := detector.MarkBatch(valid)
	result.Errors = append(result.Errors, dupErrs...)
	if err := detector.MarkExisting(ctx, valid); err != nil {
		return nil, err
	}

	var toCommit []*CanonicalRecord
	for _, rec := range valid {
		switch rec.Status {
		case StatusDuplicateInBatch:
			result.Duplicates++
			result.Skipped++
		case StatusExistsInStore:
			result.Duplicates++
			if policy == PolicyUpdate {
				toCommit = append(toCommit, rec)
			} else {
				result.Skipped++
			}
		default:
			toCommit = append(toCommit, rec)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !commit {
		// Dry run: predict commit outcomes.
		for _, rec := range toCommit {
			if rec.Status == StatusExistsInStore {
				result.Updated++
			} else {
				result.Imported++
			}
		}
		opts.report(PhaseComplete)
		return result, nil
	}

	opts.report(PhaseCommitting)
	if len(toCommit) > 0 {
		outcomes, err := imp.store.CommitRecords(ctx, toCommit, policy)
		if err != nil {
			return nil, err
		}
		for _, out := range outcomes {
			switch out.Status {
			case CommitCreated:
				result.Imported++
			case CommitUpdated:
				result.Updated++
			case CommitFailed:
				result.Failed++
				result.Errors = append(result.Errors, RowError{
					RowNumber: out.OriginRow,
					Kind:      KindPersistence,
					Message:   out.Message,
				})
			}
		}
	}

	imp.logger.Info("import complete",
		"total", result.Total,
		"imported", result.Imported,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duplicates", result.Duplicates,
		"policy", string(policy),
		"duration", time.Since(started),
	)
	opts.report(PhaseComplete)
	return result, nil
}

// validateAndTransform runs validation and transformation concurrently
// across rows. Both are pure per-row functions, so only the slot a worker
// writes to is shared; results come back indexed by row position.
func (imp *Importer) validateAndTransform(ctx context.Context, rows []Row, mapping *FieldMapping, required []string, workers int) ([]*CanonicalRecord, [][]RowError) {
	records := make([]*CanonicalRecord, len(rows))
	rowErrs := make([][]RowError, len(rows))
	validator := NewRowValidator(mapping, imp.catalog, required, time.Now())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, row := range rows {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if errs := validator.Validate(row); len(errs) > 0 {
				rowErrs[i] = errs
				return nil
			}
			records[i] = TransformRow(row, mapping, imp.catalog)
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = g.Wait()

	return records, rowErrs
}
