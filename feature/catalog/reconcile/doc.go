// Package reconcile holds the pure decision logic of the sync engine:
// classification transitions, source-to-cache field application and
// validation of locally originated edits.
//
// Nothing in this package touches the network or the database, which is
// what keeps the state machine exhaustively testable.
package reconcile
