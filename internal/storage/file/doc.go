// Package file persists pagination state and dispatch checkpoints on the
// local filesystem. Every write goes to a temporary sibling first and is
// renamed into place, so readers never observe a partial file.
package file
