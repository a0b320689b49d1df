// Package chunker implements the content-defined chunking contract
// (SPEC_FULL.md §4.1 / C1): given a readable byte stream, produce a
// finite ordered fingerprint.Sequence terminated by a whole-file hash
// record.
//
// Chunking is content-defined (boundaries chosen by a rolling hash over
// the data, not fixed offsets) via github.com/restic/chunker, the same
// Rabin fingerprint scheme restic itself uses to deduplicate backup
// data. A fixed polynomial is used so that identical bytes always
// produce identical boundaries across runs and across machines
// (P-stable); a localized edit only perturbs the chunks whose rolling
// hash window overlaps the edit, so surrounding chunks stay bit-identical
// (P-local). Both properties are the external contract the reconciler
// and transfer engines rely on — if a future chunker implementation
// dropped P-local, block reuse would simply degrade to full-file
// transfer; correctness would not be affected.
package chunker

import (
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"

	resticchunker "github.com/restic/chunker"

	"github.com/phlash/azure-sync/internal/fingerprint"
)

// pol is a fixed Rabin polynomial. Any file synced by this tool, from
// any host, must chunk identically, so the polynomial is a constant
// rather than generated per run or per repository.
const pol = resticchunker.Pol(0x3DA3358B4DC173)

// Error wraps a chunker failure. Per SPEC_FULL.md §4.1/§7, a chunker
// failure is not fatal to the run: the caller skips the offending file
// and continues.
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("chunker failure: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Chunk reads all of r and returns its fingerprint.Sequence. The final
// record of the returned sequence is always the whole-file hash.
// Chunk boundaries land between resticchunker.MinSize and MaxSize
// bytes, the package's fixed defaults.
func Chunk(r io.Reader) (fingerprint.Sequence, error) {
	whole := md5.New()
	tee := io.TeeReader(r, whole)

	chnk := resticchunker.New(tee, pol)
	buf := make([]byte, resticchunker.MaxSize)

	var seq fingerprint.Sequence
	for {
		c, err := chnk.Next(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &Error{Err: err}
		}
		sum := md5.Sum(c.Data)
		seq = append(seq, fingerprint.Fingerprint{
			Length: uint64(c.Length),
			ID:     base64.StdEncoding.EncodeToString(sum[:]),
		})
	}

	wholeSum := whole.Sum(nil)
	seq = append(seq, fingerprint.Fingerprint{
		Length: 0,
		ID:     base64.StdEncoding.EncodeToString(wholeSum),
	})
	return seq, nil
}
