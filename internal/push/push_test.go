package push

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/phlash/azure-sync/internal/fingerprint"
	"github.com/phlash/azure-sync/internal/metadata"
	"github.com/phlash/azure-sync/internal/objectstore"
	"github.com/phlash/azure-sync/internal/reconciler"
)

type recordingStore struct {
	objectstore.Store
	mu        sync.Mutex
	putIDs    []string
	committed []string
	metadata  map[string]string
	md5       string
}

func (s *recordingStore) PutBlock(ctx context.Context, name, id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putIDs = append(s.putIDs, id)
	return nil
}

func (s *recordingStore) CommitBlockList(ctx context.Context, name string, ids []string, md map[string]string, contentMD5 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed = ids
	s.metadata = md
	s.md5 = contentMD5
	return nil
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "f.bin")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPushNewUploadsAllChunks(t *testing.T) {
	path := writeTemp(t, "helloworld")
	seq := fingerprint.Sequence{
		{Length: 5, ID: "c1"},
		{Length: 5, ID: "c2"},
		{Length: 0, ID: "whole"},
	}
	store := &recordingStore{}
	e := &Engine{Store: store, Concurrency: 2}
	err := e.PushNew(context.Background(), reconciler.PushNew{
		Name: "f.bin", Path: path, Chunks: seq, Stat: metadata.Stat{Mtime: 1},
	})
	if err != nil {
		t.Fatalf("PushNew: %v", err)
	}
	if len(store.putIDs) != 2 {
		t.Fatalf("expected 2 puts, got %d", len(store.putIDs))
	}
	if len(store.committed) != 2 || store.committed[0] != "c1" || store.committed[1] != "c2" {
		t.Fatalf("commit order wrong: %v", store.committed)
	}
	if store.md5 != "whole" {
		t.Errorf("content-md5 = %q, want whole-file hash", store.md5)
	}
}

func TestPushModifyReusesExistingBlocks(t *testing.T) {
	path := writeTemp(t, "helloworld")
	seq := fingerprint.Sequence{
		{Length: 5, ID: "c1"},
		{Length: 5, ID: "c2"},
		{Length: 0, ID: "whole"},
	}
	store := &recordingStore{}
	e := &Engine{Store: store, Concurrency: 2}
	err := e.PushModify(context.Background(), reconciler.PushModify{
		Name: "f.bin", Path: path, Chunks: seq,
		ExistingBlocks: []objectstore.Block{{ID: "c1", Size: 5}},
		Stat:           metadata.Stat{Mtime: 1},
	})
	if err != nil {
		t.Fatalf("PushModify: %v", err)
	}
	if len(store.putIDs) != 1 || store.putIDs[0] != "c2" {
		t.Fatalf("expected only c2 uploaded, got %v", store.putIDs)
	}
	if len(store.committed) != 2 {
		t.Fatalf("expected both ids in commit, got %v", store.committed)
	}
}

func TestPushMissingFileIsSkippedNotFatal(t *testing.T) {
	store := &recordingStore{}
	e := &Engine{Store: store, Concurrency: 2}
	err := e.PushNew(context.Background(), reconciler.PushNew{
		Name: "gone.bin", Path: filepath.Join(t.TempDir(), "gone.bin"),
		Chunks: fingerprint.Sequence{{Length: 0, ID: "whole"}},
	})
	if err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
	if len(store.committed) != 0 {
		t.Fatal("expected no commit for missing file")
	}
}
