// Package archive defines the records, persisted state and collaborator
// contracts shared by the index paginator and the snapshot fetch pool.
package archive
