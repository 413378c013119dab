// Package artifact addresses and transfers binary task artifacts in the
// shared object store: uploaded input media, assembled documents, and
// subtitle transcripts.
package artifact
