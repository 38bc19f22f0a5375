// Package sync drives one batch run: pull every page in scope from the
// source, reconcile each record against the cache, audit what changed,
// then demote records the completed fetch no longer reports.
//
// A failed or cancelled fetch never triggers demotion, since partial
// data cannot distinguish "deleted upstream" from "not yet seen".
package sync
