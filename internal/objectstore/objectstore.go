// Package objectstore defines the block-addressable blob abstraction
// the synchronizer treats as an external collaborator (SPEC_FULL.md
// §4.2 / C2). Any backend satisfying Store is acceptable; this package
// never imports a specific cloud SDK directly — see the azureblob,
// s3block, and gcsblock subpackages for concrete implementations.
package objectstore

import (
	"context"
	"io"
	"time"
)

// Block is one committed block reference: an id (the base64 MD5 of its
// contents) and its size in bytes.
type Block struct {
	ID   string
	Size uint64
}

// BlobRecord is one remote blob as returned by List.
type BlobRecord struct {
	Name          string
	ContentLength uint64
	ContentMD5    string
	LastModified  time.Time
	Metadata      map[string]string
}

// Store is the object-store adapter contract. Implementations must
// preserve block ids byte-exactly: the synchronizer relies on the id
// being the base64 MD5 of the block (SPEC_FULL.md §4.2).
type Store interface {
	// List returns every blob whose name starts with prefix, with
	// metadata populated. Records are streamed to yield one at a time,
	// which is what lets the caller log progress every Nth entry.
	List(ctx context.Context, prefix string, yield func(BlobRecord) error) error

	// GetBlockList returns the ordered committed block list for name.
	GetBlockList(ctx context.Context, name string) ([]Block, error)

	// PutBlock uploads one block's bytes under id. Idempotent by
	// (name, id): re-uploading the same id is a no-op on the server
	// side, by construction of every backend here.
	PutBlock(ctx context.Context, name, id string, data []byte) error

	// CommitBlockList atomically replaces name's committed block list,
	// with metadata and content-md5 describing the whole committed
	// content.
	CommitBlockList(ctx context.Context, name string, ids []string, metadata map[string]string, contentMD5 string) error

	// GetBlob streams the whole blob's bytes to w.
	GetBlob(ctx context.Context, name string, w io.Writer) error

	// GetBlobRange streams bytes [start, end] (inclusive) to w.
	GetBlobRange(ctx context.Context, name string, w io.Writer, start, end uint64) error

	// Delete removes a blob entirely. Used by the delete propagator in
	// nuke mode.
	Delete(ctx context.Context, name string) error
}
