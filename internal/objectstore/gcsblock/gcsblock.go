// Package gcsblock implements objectstore.Store against Google Cloud
// Storage (via cloud.google.com/go/storage). GCS, like S3, has no
// staged/uncommitted block primitive, so this backend uses the same
// manifest-object strategy as objectstore/s3block (SPEC_FULL.md §4.2):
// blocks live under "<name>/.blocks/<id>", and CommitBlockList writes a
// JSON manifest object at "<name>.blocklist" recording the ordered ids,
// metadata, and content-md5.
package gcsblock

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/phlash/azure-sync/internal/objectstore"
)

// Store wraps one GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// New wraps an already-configured storage.Client.
func New(client *storage.Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

func (s *Store) bucketHandle() *storage.BucketHandle {
	return s.client.Bucket(s.bucket)
}

func blockKey(name, id string) string {
	return name + "/.blocks/" + id
}

func manifestKey(name string) string {
	return name + ".blocklist"
}

type manifest struct {
	IDs        []string          `json:"ids"`
	Metadata   map[string]string `json:"metadata"`
	ContentMD5 string            `json:"content_md5"`
}

// List implements objectstore.Store.
func (s *Store) List(ctx context.Context, prefix string, yield func(objectstore.BlobRecord) error) error {
	it := s.bucketHandle().Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("gcsblock: list %q: %w", prefix, err)
		}
		const suffix = ".blocklist"
		if len(attrs.Name) < len(suffix) || attrs.Name[len(attrs.Name)-len(suffix):] != suffix {
			continue
		}
		name := attrs.Name[:len(attrs.Name)-len(suffix)]
		mf, err := s.readManifest(ctx, name)
		if err != nil {
			return err
		}
		rec := objectstore.BlobRecord{
			Name:          name,
			ContentMD5:    mf.ContentMD5,
			Metadata:      mf.Metadata,
			ContentLength: uint64(attrs.Size),
			LastModified:  attrs.Updated,
		}
		if err := yield(rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) readManifest(ctx context.Context, name string) (manifest, error) {
	r, err := s.bucketHandle().Object(manifestKey(name)).NewReader(ctx)
	if err != nil {
		return manifest{}, fmt.Errorf("gcsblock: read manifest %q: %w", name, err)
	}
	defer r.Close()
	var mf manifest
	if err := json.NewDecoder(r).Decode(&mf); err != nil {
		return manifest{}, fmt.Errorf("gcsblock: decode manifest %q: %w", name, err)
	}
	return mf, nil
}

// GetBlockList implements objectstore.Store.
func (s *Store) GetBlockList(ctx context.Context, name string) ([]objectstore.Block, error) {
	mf, err := s.readManifest(ctx, name)
	if err != nil {
		return nil, err
	}
	blocks := make([]objectstore.Block, 0, len(mf.IDs))
	for _, id := range mf.IDs {
		attrs, err := s.bucketHandle().Object(blockKey(name, id)).Attrs(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcsblock: attrs block %q/%s: %w", name, id, err)
		}
		blocks = append(blocks, objectstore.Block{ID: id, Size: uint64(attrs.Size)})
	}
	return blocks, nil
}

// PutBlock implements objectstore.Store.
func (s *Store) PutBlock(ctx context.Context, name, id string, data []byte) error {
	w := s.bucketHandle().Object(blockKey(name, id)).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("gcsblock: write block %q/%s: %w", name, id, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcsblock: close block %q/%s: %w", name, id, err)
	}
	return nil
}

// CommitBlockList implements objectstore.Store.
func (s *Store) CommitBlockList(ctx context.Context, name string, ids []string, metadata map[string]string, contentMD5 string) error {
	mf := manifest{IDs: ids, Metadata: metadata, ContentMD5: contentMD5}
	raw, err := json.Marshal(mf)
	if err != nil {
		return fmt.Errorf("gcsblock: encode manifest %q: %w", name, err)
	}
	w := s.bucketHandle().Object(manifestKey(name)).NewWriter(ctx)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("gcsblock: write manifest %q: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcsblock: close manifest %q: %w", name, err)
	}
	return nil
}

// GetBlob implements objectstore.Store by concatenating committed
// blocks in order.
func (s *Store) GetBlob(ctx context.Context, name string, w io.Writer) error {
	mf, err := s.readManifest(ctx, name)
	if err != nil {
		return err
	}
	for _, id := range mf.IDs {
		r, err := s.bucketHandle().Object(blockKey(name, id)).NewReader(ctx)
		if err != nil {
			return fmt.Errorf("gcsblock: read block %q/%s: %w", name, id, err)
		}
		_, err = io.Copy(w, r)
		r.Close()
		if err != nil {
			return fmt.Errorf("gcsblock: stream block %q/%s: %w", name, id, err)
		}
	}
	return nil
}

// GetBlobRange implements objectstore.Store by locating the blocks that
// overlap [start, end] and ranging into each with NewRangeReader.
func (s *Store) GetBlobRange(ctx context.Context, name string, w io.Writer, start, end uint64) error {
	blocks, err := s.GetBlockList(ctx, name)
	if err != nil {
		return err
	}
	var off uint64
	for _, b := range blocks {
		blkStart, blkEnd := off, off+b.Size-1
		off += b.Size
		if blkEnd < start || blkStart > end {
			continue
		}
		rs := int64(max(start, blkStart) - blkStart)
		re := int64(min(end, blkEnd)-blkStart) - rs + 1
		r, err := s.bucketHandle().Object(blockKey(name, b.ID)).NewRangeReader(ctx, rs, re)
		if err != nil {
			return fmt.Errorf("gcsblock: range read block %q/%s: %w", name, b.ID, err)
		}
		_, err = io.Copy(w, r)
		r.Close()
		if err != nil {
			return fmt.Errorf("gcsblock: stream range block %q/%s: %w", name, b.ID, err)
		}
	}
	return nil
}

// Delete implements objectstore.Store, removing the manifest and every
// block it references.
func (s *Store) Delete(ctx context.Context, name string) error {
	mf, err := s.readManifest(ctx, name)
	if err != nil {
		return err
	}
	for _, id := range mf.IDs {
		if err := s.bucketHandle().Object(blockKey(name, id)).Delete(ctx); err != nil {
			return fmt.Errorf("gcsblock: delete block %q/%s: %w", name, id, err)
		}
	}
	if err := s.bucketHandle().Object(manifestKey(name)).Delete(ctx); err != nil {
		return fmt.Errorf("gcsblock: delete manifest %q: %w", name, err)
	}
	return nil
}

func max(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
