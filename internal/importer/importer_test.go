package importer_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parishkeep/parishkeep/internal/importer"
	"github.com/parishkeep/parishkeep/internal/testutil"
)

func newTestImporter() (*importer.Importer, *testutil.InMemoryMemberStore) {
	store := testutil.NewInMemoryMemberStore()
	return importer.New(store, slog.Default()), store
}

func TestRun_HappyPath(t *testing.T) {
	imp, store := newTestImporter()

	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n" +
		"Jane,Smith,jane@example.com\n")

	result, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Failed)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 2, store.Count())

	member, ok := store.Get("john@example.com")
	require.True(t, ok)
	assert.Equal(t, "John", member["firstName"])
}

func TestRun_PartialFailure(t *testing.T) {
	imp, store := newTestImporter()

	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n" +
		"Jane,Smith,not-an-email\n" +
		"Bob,Brown,bob@example.com\n")

	result, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].RowNumber)
	assert.Equal(t, "email", result.Errors[0].Field)
	assert.Equal(t, importer.KindValidation, result.Errors[0].Kind)

	// The invalid row never reaches the store.
	assert.Equal(t, 2, store.Count())
	_, ok := store.Get("not-an-email")
	assert.False(t, ok)
}

func TestRun_CountsAlwaysReconcile(t *testing.T) {
	imp, _ := newTestImporter()

	// A mix of valid, invalid, structurally bad and duplicate rows.
	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n" +
		"short-row\n" +
		"Jane,Smith,bad-email\n" +
		"Dup,One,john@example.com\n")

	result, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, result.Total,
		result.Imported+result.Updated+result.Skipped+result.Failed)
}

func TestRun_MissingRequiredFieldAbortsBatch(t *testing.T) {
	imp, store := newTestImporter()

	data := []byte("Name,Phone\nJohn,5551234567\n")

	result, err := imp.Run(context.Background(), data, importer.Options{})
	assert.Nil(t, result)

	var mappingErr *importer.MappingError
	require.ErrorAs(t, err, &mappingErr)
	assert.Contains(t, mappingErr.MissingRequired, "email")

	// Nothing committed on an aborted batch.
	assert.Equal(t, 0, store.Count())
	assert.Equal(t, 0, store.CommitCalls)
}

func TestRun_StructuralAbort(t *testing.T) {
	imp, _ := newTestImporter()

	result, err := imp.Run(context.Background(), []byte("Email\n"), importer.Options{})
	assert.Nil(t, result)

	var structuralErr *importer.StructuralError
	assert.ErrorAs(t, err, &structuralErr)
}

func TestRun_BadRowsCountedAsFailed(t *testing.T) {
	imp, _ := newTestImporter()

	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n" +
		"only-one-field\n")

	result, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, importer.KindStructural, result.Errors[0].Kind)
	assert.Equal(t, 3, result.Errors[0].RowNumber)
}

func TestRun_InBatchDuplicate(t *testing.T) {
	imp, store := newTestImporter()

	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n" +
		"Johnny,Doe,JOHN@EXAMPLE.COM\n")

	result, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Duplicates)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].RowNumber)
	assert.Equal(t, importer.KindDuplicate, result.Errors[0].Kind)

	// The first occurrence won.
	member, ok := store.Get("john@example.com")
	require.True(t, ok)
	assert.Equal(t, "John", member["firstName"])
}

func TestRun_SkipPolicyIsIdempotent(t *testing.T) {
	imp, store := newTestImporter()

	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n" +
		"Jane,Smith,jane@example.com\n")

	first, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, first.Imported)

	second, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, second.Imported)
	assert.Equal(t, 2, second.Skipped)
	assert.Equal(t, 2, second.Duplicates)
	assert.Equal(t, 0, second.Failed)
	// Store-level duplicates under skip are silent: no per-row errors.
	assert.Empty(t, second.Errors)
	assert.Equal(t, 2, store.Count())
}

func TestRun_UpdatePolicyMerges(t *testing.T) {
	imp, store := newTestImporter()
	store.Seed("john@example.com", map[string]interface{}{
		"email":     "john@example.com",
		"firstName": "Jon",
		"phone":     "(555) 000-0000",
	})

	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n")

	result, err := imp.Run(context.Background(), data, importer.Options{
		Policy: importer.PolicyUpdate,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 0, result.Skipped)

	member, ok := store.Get("john@example.com")
	require.True(t, ok)
	assert.Equal(t, "John", member["firstName"])
	assert.Equal(t, "Doe", member["lastName"])
	// Fields absent from the CSV survive the merge.
	assert.Equal(t, "(555) 000-0000", member["phone"])
}

func TestRun_CommitFailureIsPerRow(t *testing.T) {
	imp, store := newTestImporter()
	store.FailEmails["jane@example.com"] = "check constraint violated"

	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n" +
		"Jane,Smith,jane@example.com\n")

	result, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 3, result.Errors[0].RowNumber)
	assert.Equal(t, importer.KindPersistence, result.Errors[0].Kind)
	assert.Equal(t, "check constraint violated", result.Errors[0].Message)
}

func TestRun_StoreErrorAbortsBatch(t *testing.T) {
	imp, store := newTestImporter()
	store.CommitErr = errors.New("connection reset")

	data := []byte("First Name,Last Name,Email\nJohn,Doe,john@example.com\n")

	result, err := imp.Run(context.Background(), data, importer.Options{})
	assert.Nil(t, result)
	assert.ErrorContains(t, err, "connection reset")
}

func TestRun_SingleRoundTripPerPhase(t *testing.T) {
	imp, store := newTestImporter()

	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n" +
		"Jane,Smith,jane@example.com\n" +
		"Bob,Brown,bob@example.com\n")

	_, err := imp.Run(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, store.LookupCalls)
	assert.Equal(t, 1, store.CommitCalls)
}

func TestRun_Cancelled(t *testing.T) {
	imp, store := newTestImporter()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	data := []byte("First Name,Last Name,Email\nJohn,Doe,john@example.com\n")

	result, err := imp.Run(ctx, data, importer.Options{})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, store.Count())
}

func TestRun_MappingOverrides(t *testing.T) {
	imp, store := newTestImporter()

	data := []byte("Given,Family,Contact\nJohn,Doe,john@example.com\n")

	result, err := imp.Run(context.Background(), data, importer.Options{
		Mapping: map[string]string{
			"Given":   "firstName",
			"Family":  "lastName",
			"Contact": "email",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Imported)
	member, ok := store.Get("john@example.com")
	require.True(t, ok)
	assert.Equal(t, "Doe", member["lastName"])
}

func TestRun_CustomRequiredFields(t *testing.T) {
	imp, _ := newTestImporter()

	// Only email present; default required set would abort.
	data := []byte("Email\njohn@example.com\n")

	result, err := imp.Run(context.Background(), data, importer.Options{
		RequiredFields: []string{"email"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
}

func TestRun_ProgressPhases(t *testing.T) {
	imp, _ := newTestImporter()

	var phases []importer.Phase
	data := []byte("First Name,Last Name,Email\nJohn,Doe,john@example.com\n")

	_, err := imp.Run(context.Background(), data, importer.Options{
		Progress: func(p importer.Phase) { phases = append(phases, p) },
	})
	require.NoError(t, err)

	assert.Equal(t, []importer.Phase{
		importer.PhaseParsing,
		importer.PhaseMapping,
		importer.PhaseValidating,
		importer.PhaseDuplicates,
		importer.PhaseCommitting,
		importer.PhaseComplete,
	}, phases)
}

func TestAnalyze_CommitsNothing(t *testing.T) {
	imp, store := newTestImporter()
	store.Seed("jane@example.com", nil)

	data := []byte("First Name,Last Name,Email\n" +
		"John,Doe,john@example.com\n" +
		"Jane,Smith,jane@example.com\n" +
		"Bad,Row,not-an-email\n")

	result, err := imp.Analyze(context.Background(), data, importer.Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Duplicates)

	assert.Equal(t, 0, store.CommitCalls)
	assert.Equal(t, 1, store.Count())
}

func TestAnalyze_PredictsUpdates(t *testing.T) {
	imp, store := newTestImporter()
	store.Seed("john@example.com", nil)

	data := []byte("First Name,Last Name,Email\nJohn,Doe,john@example.com\n")

	result, err := imp.Analyze(context.Background(), data, importer.Options{
		Policy: importer.PolicyUpdate,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 0, store.CommitCalls)
}
