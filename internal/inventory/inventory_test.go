package inventory

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phlash/azure-sync/internal/logging"
	"github.com/phlash/azure-sync/internal/objectstore"
)

func TestBuildLocalSkipsSymlinksAndExcludes(t *testing.T) {
	root := t.TempDir()
	must(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))
	must(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	must(t, os.WriteFile(filepath.Join(root, "sub", "b.log"), []byte("world"), 0o644))
	if err := os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	idx, err := BuildLocal(root, []string{"**/*.log"})
	if err != nil {
		t.Fatalf("BuildLocal: %v", err)
	}
	want := filepath.ToSlash(filepath.Join(root, "a.txt"))
	if _, ok := idx[want]; !ok {
		t.Errorf("expected %q present, got keys %v", want, keys(idx))
	}
	if _, ok := idx[filepath.ToSlash(filepath.Join(root, "link.txt"))]; ok {
		t.Error("symlink must be excluded")
	}
	if _, ok := idx[filepath.ToSlash(filepath.Join(root, "sub", "b.log"))]; ok {
		t.Error("excluded glob must be absent")
	}
}

func keys(idx map[string]LocalFile) []string {
	ks := make([]string, 0, len(idx))
	for k := range idx {
		ks = append(ks, k)
	}
	return ks
}

// fakeStore's List filters by prefix the way every real backend does
// (azureblob.go, s3block.go): only records whose Name starts with
// prefix are yielded. A store that ignores prefix would never catch a
// BuildLocal/BuildRemote key mismatch.
type fakeStore struct {
	objectstore.Store
	records []objectstore.BlobRecord
}

func (f *fakeStore) List(ctx context.Context, prefix string, yield func(objectstore.BlobRecord) error) error {
	for _, r := range f.records {
		if !strings.HasPrefix(r.Name, prefix) {
			continue
		}
		if err := yield(r); err != nil {
			return err
		}
	}
	return nil
}

func TestBuildRemoteAppliesExclude(t *testing.T) {
	store := &fakeStore{records: []objectstore.BlobRecord{
		{Name: "keep.txt"}, {Name: "skip.tmp"},
	}}
	idx, err := BuildRemote(context.Background(), store, "", []string{"*.tmp"}, logging.Default(slog.Default()))
	if err != nil {
		t.Fatalf("BuildRemote: %v", err)
	}
	if _, ok := idx["keep.txt"]; !ok {
		t.Error("expected keep.txt present")
	}
	if _, ok := idx["skip.tmp"]; ok {
		t.Error("excluded glob must be absent")
	}
}

func TestBuildRemoteFiltersByPrefix(t *testing.T) {
	store := &fakeStore{records: []objectstore.BlobRecord{
		{Name: "data/www/index.html"}, {Name: "data/other/file.txt"},
	}}
	idx, err := BuildRemote(context.Background(), store, "data/www", nil, logging.Default(slog.Default()))
	if err != nil {
		t.Fatalf("BuildRemote: %v", err)
	}
	if _, ok := idx["data/www/index.html"]; !ok {
		t.Error("expected data/www/index.html present")
	}
	if _, ok := idx["data/other/file.txt"]; ok {
		t.Error("entry outside prefix must be absent")
	}
}

// TestBuildLocalAndBuildRemoteAgreeOnKeys is the round-trip regression
// test for the name-canonicalization bug: a file committed under the
// name BuildLocal produces must be found by BuildRemote when listing
// with the same scan path as prefix, through a store that actually
// filters by prefix like a real backend.
func TestBuildLocalAndBuildRemoteAgreeOnKeys(t *testing.T) {
	root := t.TempDir()
	must(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("hi"), 0o644))

	local, err := BuildLocal(root, nil)
	if err != nil {
		t.Fatalf("BuildLocal: %v", err)
	}
	lf, ok := local[filepath.ToSlash(filepath.Join(root, "index.html"))]
	if !ok {
		t.Fatalf("local index missing expected key, got %v", keys(local))
	}

	// Simulate a blob committed under the local file's own Name, the
	// way push.Engine commits it (push.go: CommitBlockList(ctx, a.Name, ...)).
	store := &fakeStore{records: []objectstore.BlobRecord{{Name: lf.Name}}}
	remote, err := BuildRemote(context.Background(), store, root, nil, logging.Default(slog.Default()))
	if err != nil {
		t.Fatalf("BuildRemote: %v", err)
	}
	if _, ok := remote[lf.Name]; !ok {
		t.Fatalf("remote index did not find blob committed under local name %q after re-scan; got %v", lf.Name, remote)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
