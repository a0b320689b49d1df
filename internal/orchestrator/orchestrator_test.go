package orchestrator

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phlash/azure-sync/internal/config"
	"github.com/phlash/azure-sync/internal/objectstore"
)

// memStore is a minimal in-process Store. List filters by prefix the
// way every real backend does (azureblob.go, s3block.go): a blob whose
// name doesn't start with prefix must never be yielded, or the suite
// would miss a BuildLocal/BuildRemote key mismatch like the one this
// store's round-trip tests guard against.
type memStore struct {
	objectstore.Store
	blobs  map[string]objectstore.BlobRecord
	blocks map[string]map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{
		blobs:  map[string]objectstore.BlobRecord{},
		blocks: map[string]map[string][]byte{},
	}
}

func (m *memStore) List(ctx context.Context, prefix string, yield func(objectstore.BlobRecord) error) error {
	for name, b := range m.blobs {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := yield(b); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) PutBlock(ctx context.Context, name, blockID string, data []byte) error {
	if m.blocks[name] == nil {
		m.blocks[name] = map[string][]byte{}
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	m.blocks[name][blockID] = buf
	return nil
}

func (m *memStore) CommitBlockList(ctx context.Context, name string, blockIDs []string, metadata map[string]string, contentMD5 string) error {
	var whole bytes.Buffer
	for _, id := range blockIDs {
		whole.Write(m.blocks[name][id])
	}
	sum := md5.Sum(whole.Bytes())
	m.blobs[name] = objectstore.BlobRecord{
		Name:          name,
		ContentLength: uint64(whole.Len()),
		ContentMD5:    base64.StdEncoding.EncodeToString(sum[:]),
		Metadata:      metadata,
	}
	return nil
}

func TestRunDryRunReportsPushNewWithoutSideEffects(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := newMemStore()
	o := New(config.Config{WritePrefix: t.TempDir(), MaxConcurrency: 2}, store, nil, nil)

	counts, err := o.Run(context.Background(), []string{dir}, config.RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if counts.PushNew != 1 {
		t.Fatalf("expected 1 push-new in dry run tally, got %+v", counts)
	}
}

func TestRunRejectsNothingForPushDeleteMode(t *testing.T) {
	// Mode validation itself lives in config.Mode.Validate; orchestrator
	// trusts its caller already rejected push+pull+delete.
	m := config.Mode{Push: true, Delete: true}
	if err := m.Validate(); err != nil {
		t.Fatalf("expected legal combination, got %v", err)
	}
}

// TestPushTwiceUploadsNothingOnSecondRun is the orchestrator-level
// idempotence regression test (SPEC_FULL.md §8, property 2): pushing
// an unchanged tree a second time must perform zero uploads. Using
// memStore's prefix-filtering List means this would have caught the
// BuildLocal/BuildRemote name mismatch that previously made every
// second push re-issue PushNew forever.
func TestPushTwiceUploadsNothingOnSecondRun(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "www")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "index.html"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := newMemStore()
	o := New(config.Config{WritePrefix: t.TempDir(), MaxConcurrency: 2}, store, nil, nil)
	opts := config.RunOptions{Mode: config.Mode{Push: true}}

	first, err := o.Run(context.Background(), []string{sub}, opts)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.PushNew != 1 {
		t.Fatalf("expected 1 push-new on first run, got %+v", first)
	}
	if len(store.blobs) != 1 {
		t.Fatalf("expected 1 committed blob, got %d", len(store.blobs))
	}

	second, err := o.Run(context.Background(), []string{sub}, opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Total() != 0 {
		t.Fatalf("expected zero transfer actions on second run, got %+v", second)
	}
	if second.Skipped != 1 {
		t.Fatalf("expected the unchanged file to be skipped, got %+v", second)
	}
}
