// Package database manages the GORM connection for the local cache store.
//
// The cache, audit trail, sequence counters and export ledger all live in
// the same relational database. MySQL is the production driver; sqlite is
// available for development and is used heavily by the test suites.
package database
