// Package metadata is the sole place that knows about the blob metadata
// wire formats (SPEC_FULL.md §4.3 / C3). It encodes the stat attributes
// this tool persists alongside every blob, and decodes them back across
// the two formats that have existed: the current "filestat" tuple and
// the legacy "localtimestamp" string. Callers never see the version
// split; they get one Stat value however it was recorded.
//
// The decode order is table-driven, in the spirit of a migration chain:
// each strategy is tried in turn and the first one that finds its key
// wins.
package metadata

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stat is the filesystem attribute record persisted per blob and applied
// to pulled files.
type Stat struct {
	Mode  uint32
	UID   uint32
	GID   uint32
	Mtime float64 // seconds since epoch, real-valued
}

// Keys recognized in a blob's metadata dictionary.
const (
	KeyFileStat       = "filestat"
	keyLocalTimestamp = "localtimestamp" // legacy, v0.1; read-only
)

// decodeStrategy tries to produce a Stat from a metadata dictionary. It
// returns ok=false if its key is absent, letting the caller fall
// through to the next strategy.
type decodeStrategy struct {
	name string
	try  func(md map[string]string) (Stat, bool, error)
}

var decodeChain = []decodeStrategy{
	{name: "filestat", try: decodeFileStat},
	{name: "localtimestamp", try: decodeLocalTimestamp},
}

// Decode interprets a blob's metadata dictionary into a Stat. lastModified
// is the object store's own server-side timestamp, used as the final
// fallback (with a "missing timestamp" warning signaled via the returned
// bool) when neither recognized key is present.
func Decode(md map[string]string, lastModified time.Time) (st Stat, warnMissingTimestamp bool, err error) {
	for _, strat := range decodeChain {
		s, ok, err := strat.try(md)
		if err != nil {
			return Stat{}, false, fmt.Errorf("decode %s: %w", strat.name, err)
		}
		if ok {
			return s, false, nil
		}
	}
	ts := float64(lastModified.UTC().UnixNano()) / 1e9
	return Stat{Mtime: ts}, true, nil
}

func decodeFileStat(md map[string]string) (Stat, bool, error) {
	raw, ok := md[KeyFileStat]
	if !ok {
		return Stat{}, false, nil
	}
	var tuple [4]float64
	if err := json.Unmarshal([]byte(raw), &tuple); err != nil {
		return Stat{}, false, fmt.Errorf("invalid filestat json: %w", err)
	}
	return Stat{
		Mode:  uint32(tuple[0]),
		UID:   uint32(tuple[1]),
		GID:   uint32(tuple[2]),
		Mtime: tuple[3],
	}, true, nil
}

func decodeLocalTimestamp(md map[string]string) (Stat, bool, error) {
	raw, ok := md[keyLocalTimestamp]
	if !ok {
		return Stat{}, false, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// Legacy writers used Python's isoformat(), which omits the "Z"
		// suffix for UTC; fall back to the timezone-less layout.
		t, err = time.ParseInLocation("2006-01-02T15:04:05.999999", raw, time.UTC)
		if err != nil {
			return Stat{}, false, fmt.Errorf("invalid localtimestamp: %w", err)
		}
	}
	ts := float64(t.UTC().UnixNano()) / 1e9
	return Stat{Mtime: ts, UID: 0, GID: 0, Mode: 0}, true, nil
}

// Encode produces the metadata dictionary to write for st. Only the
// current "filestat" key is ever emitted; the legacy key is never
// written by this version.
func Encode(st Stat) (map[string]string, error) {
	tuple := [4]float64{float64(st.Mode), float64(st.UID), float64(st.GID), st.Mtime}
	raw, err := json.Marshal(tuple)
	if err != nil {
		return nil, fmt.Errorf("encode filestat: %w", err)
	}
	return map[string]string{KeyFileStat: string(raw)}, nil
}
