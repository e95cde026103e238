// Package importer turns user-supplied member CSV files into validated,
// typed, de-duplicated member records.
//
// The pipeline runs in fixed phases: tokenize the raw file, resolve a
// header-to-field mapping against the canonical catalog, validate and
// transform each row, detect duplicate emails (within the file and against
// the member store), then commit the survivors in one batched call. File and
// mapping problems abort the whole import; from validation onward a bad row
// only excludes that row. The package has no UI or HTTP dependencies and the
// member store is injected, so the full pipeline is testable against an
// in-memory store.
package importer
