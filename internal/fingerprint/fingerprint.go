// Package fingerprint defines the chunk fingerprint model shared by the
// chunker, the reconciler, and both transfer engines.
//
// A fingerprint sequence describes a file's content as an ordered list of
// (length, id) pairs, where id is the base64 MD5 of the chunk's bytes,
// terminated by a zero-length record whose id is the MD5 of the whole
// file. Zero-length intermediate records are legal (an empty chunk) and
// must be skipped on transfer, but the terminating record is never
// skipped — it is the authoritative content identity used for the
// whole-file hash comparison.
package fingerprint

// Fingerprint is one (length, id) record in a chunk sequence.
type Fingerprint struct {
	Length uint64
	ID     string
}

// Sequence is an ordered chunk fingerprint list, always ending with a
// terminating record (Length == 0, ID == whole-file MD5).
type Sequence []Fingerprint

// WholeFileHash returns the terminating record's id, the content
// identity for the whole file.
func (s Sequence) WholeFileHash() string {
	if len(s) == 0 {
		return ""
	}
	return s[len(s)-1].ID
}

// Size returns the sum of all non-terminating chunk lengths, i.e. the
// file size the sequence describes.
func (s Sequence) Size() uint64 {
	var total uint64
	for _, f := range s {
		total += f.Length
	}
	return total
}

// OffsetMap returns the byte offset and length of every chunk id,
// skipping zero-length records. Computed once per file by callers as
// an offset map — re-summing prior chunk
// lengths on every lookup is quadratic for large files (see
// SPEC_FULL.md §4.7 / Design Notes).
func (s Sequence) OffsetMap() map[string]Span {
	m := make(map[string]Span, len(s))
	var off uint64
	for _, f := range s {
		if f.Length == 0 {
			continue
		}
		// First occurrence wins; duplicate chunk ids within one file are
		// legal (repeated content) and any matching span is as good as
		// another for block reuse.
		if _, ok := m[f.ID]; !ok {
			m[f.ID] = Span{Offset: off, Length: f.Length}
		}
		off += f.Length
	}
	return m
}

// Span is a byte range within a local file.
type Span struct {
	Offset uint64
	Length uint64
}
