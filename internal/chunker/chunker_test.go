package chunker

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestChunkTerminatorIsWholeFileHash(t *testing.T) {
	data := []byte("hello world")
	seq, err := Chunk(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(seq) == 0 {
		t.Fatal("expected at least the terminating record")
	}
	term := seq[len(seq)-1]
	if term.Length != 0 {
		t.Fatalf("terminating record length = %d, want 0", term.Length)
	}
	if term.ID == "" {
		t.Fatal("terminating record id is empty")
	}
}

func TestChunkStable(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 50000)
	seq1, err := Chunk(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Chunk 1: %v", err)
	}
	seq2, err := Chunk(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Chunk 2: %v", err)
	}
	if len(seq1) != len(seq2) {
		t.Fatalf("chunk count differs: %d vs %d", len(seq1), len(seq2))
	}
	for i := range seq1 {
		if seq1[i] != seq2[i] {
			t.Fatalf("record %d differs: %+v vs %+v", i, seq1[i], seq2[i])
		}
	}
	if seq1.Size() != uint64(len(data)) {
		t.Fatalf("Size() = %d, want %d", seq1.Size(), len(data))
	}
}

func TestChunkLocalEditLeavesMostChunksUntouched(t *testing.T) {
	// 6.4MB of non-repeating bytes, several chunks. Periodic input would
	// give the rolling hash a periodic value that never hits a cut point,
	// so the whole file would be one chunk.
	base := make([]byte, 6400000)
	rand.New(rand.NewSource(1)).Read(base)
	edited := append([]byte(nil), base...)
	edited[100] ^= 0xff

	seqBase, err := Chunk(bytes.NewReader(base))
	if err != nil {
		t.Fatalf("Chunk base: %v", err)
	}
	seqEdited, err := Chunk(bytes.NewReader(edited))
	if err != nil {
		t.Fatalf("Chunk edited: %v", err)
	}

	baseIDs := map[string]bool{}
	for _, f := range seqBase {
		if f.Length > 0 {
			baseIDs[f.ID] = true
		}
	}
	reused := 0
	total := 0
	for _, f := range seqEdited {
		if f.Length == 0 {
			continue
		}
		total++
		if baseIDs[f.ID] {
			reused++
		}
	}
	if reused == 0 {
		t.Fatalf("expected at least some chunks to survive a single-byte edit, reused=0 of %d", total)
	}
}

func TestChunkEmpty(t *testing.T) {
	seq, err := Chunk(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("Chunk: %v", err)
	}
	if len(seq) != 1 {
		t.Fatalf("expected exactly the terminating record for an empty file, got %d records", len(seq))
	}
	if seq.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", seq.Size())
	}
}
