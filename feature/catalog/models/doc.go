// Package models defines the persisted entities of the catalog cache:
// cached products and orders, the append-only audit trail, per-prefix
// sequence counters and the export history ledger.
package models
