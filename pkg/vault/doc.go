// Package vault implements the core state model for Ganymede: the credential
// metadata store, the on-disk vault layout, the exclusive vault lock, and the
// encrypted blob directory.
//
// # Overview
//
// A vault is a single root directory owned by one host. It holds a metadata
// document describing every credential and which services consume it, an
// append-only audit ledger, and one opaque encrypted blob per credential.
// Plaintext secrets never appear in the vault; encryption and decryption are
// delegated to an external oracle (see package oracle).
//
// All mutating operations follow the same discipline: acquire the exclusive
// vault lock, load a metadata snapshot, mutate the snapshot in memory, then
// commit it atomically (write to a temporary file, fsync, rename). Readers
// that skip the lock always observe either the previous or the new document,
// never a partial write.
//
// # Components
//
//   - Document: in-memory snapshot of the metadata (credentials + bindings)
//   - Store: durable load/commit of the metadata document
//   - BlobStore: the credstore directory of encrypted artifacts
//   - Guard: flock(2) based exclusive lock over the vault root
//   - Layout: canonical paths and permission discipline under the root
package vault
