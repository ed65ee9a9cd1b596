// Package index enumerates archived snapshots of a domain by paginating the
// Wayback CDX API. Progress is persisted through a store.RecordStore after
// every page so an interrupted run resumes from the last resume key.
package index
