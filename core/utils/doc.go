// Package utils provides small conversion helpers shared across features.
//
// The upstream API and imported spreadsheets are loosely typed, so the
// helpers here normalize values into the types the cache actually stores.
package utils
