// Package export generates the downstream order spreadsheet: one row per
// cached order carrying an allocated document number, plus an aggregated
// item summary sheet. Artifacts are uploaded to object storage and every
// run is recorded in the export history ledger.
package export
