// Package catalog is the external-catalog synchronization feature: it
// mirrors products and orders from the upstream commerce API into a
// local cache, classifies every record by sync outcome, audits every
// mutation, pushes local edits back to the source and produces numbered
// order exports.
//
// The heavy lifting lives in the subpackages (store, reconcile, sync,
// export); this package wires them behind the service and the HTTP
// surface.
package catalog
