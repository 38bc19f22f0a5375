// Package store provides the persistence layer of the catalog feature:
// the cached record store, the append-only audit trail and the document
// number allocator.
//
// All three share one database handle. Records are never physically
// deleted from the cache; classification changes stand in for deletion.
package store
