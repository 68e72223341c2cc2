// Package mediastore stores uploaded binary artifacts (images, attachments)
// together with a metadata record whose content type is sniffed from the
// bytes rather than trusted from the uploader.
//
// A Service coordinates two stores: a Repository holding the metadata
// records and a BlobStore holding the bytes. Each record owns exactly one
// blob. Blob keys are derived from the object name plus a fresh revision
// id, so a key is written once and never overwritten; replacing content
// writes a new blob and swaps the record's reference.
//
// Ordering
//
// Create writes the blob before inserting the record and deletes the blob
// again if the insert fails. Delete removes the record first and the blob
// second; a failed blob delete is logged and leaves an orphan blob, never
// a record without bytes.
//
// Implementations of repositories (memory, Postgres) and blob stores
// (memory, filesystem, S3) are provided under subpackages.
package mediastore
