// Package storage keeps uploaded files in S3-compatible object storage.
//
// Keys are built by the caller with Key, which sanitizes every segment.
// Put sniffs the content type from the first bytes when none is given and
// checks it against Rules before uploading. Downloads are served through
// short-lived presigned URLs.
//
// Memory implements Storage in process for tests and local development.
package storage
