package fingerprint

import "testing"

func TestWholeFileHashIsTerminatingRecord(t *testing.T) {
	seq := Sequence{{Length: 4, ID: "c1"}, {Length: 6, ID: "c2"}, {Length: 0, ID: "whole"}}
	if got := seq.WholeFileHash(); got != "whole" {
		t.Fatalf("WholeFileHash() = %q", got)
	}
}

func TestWholeFileHashEmptySequence(t *testing.T) {
	var seq Sequence
	if got := seq.WholeFileHash(); got != "" {
		t.Fatalf("WholeFileHash() on empty sequence = %q, want empty", got)
	}
}

func TestSizeExcludesTerminatingRecord(t *testing.T) {
	seq := Sequence{{Length: 4, ID: "c1"}, {Length: 6, ID: "c2"}, {Length: 0, ID: "whole"}}
	if got := seq.Size(); got != 10 {
		t.Fatalf("Size() = %d, want 10", got)
	}
}

func TestOffsetMapSkipsZeroLengthAndFirstOccurrenceWins(t *testing.T) {
	seq := Sequence{
		{Length: 4, ID: "a"},
		{Length: 3, ID: "b"},
		{Length: 4, ID: "a"}, // duplicate chunk content later in the file
		{Length: 0, ID: "whole"},
	}
	m := seq.OffsetMap()
	if _, ok := m["whole"]; ok {
		t.Fatal("terminating record must not appear in the offset map")
	}
	if m["a"].Offset != 0 || m["a"].Length != 4 {
		t.Fatalf("a = %+v, want offset 0 length 4 (first occurrence)", m["a"])
	}
	if m["b"].Offset != 4 || m["b"].Length != 3 {
		t.Fatalf("b = %+v, want offset 4 length 3", m["b"])
	}
}
