// Package storage provides the object storage client for export artifacts.
//
// Generated spreadsheets are uploaded to a Minio/S3 compatible bucket so
// that export runs leave a durable, downloadable artifact. The Client
// interface wraps the subset of minio operations the application needs,
// which keeps handlers and the export pipeline testable via the mocks
// subpackage.
package storage
