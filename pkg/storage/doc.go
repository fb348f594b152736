// Package storage stores avatar blobs behind the BlobStore interface.
//
// Two backends ship: a local filesystem store for development and an S3
// store for production. Accounts reference blobs by key (avatar_key); the
// blob itself never touches the database.
package storage
