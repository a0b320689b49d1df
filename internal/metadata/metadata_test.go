package metadata

import (
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	st := Stat{Mode: 0o644, UID: 1000, GID: 1000, Mtime: 1700000000.5}
	md, err := Encode(st)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, ok := md[keyLocalTimestamp]; ok {
		t.Fatal("Encode must never write the legacy localtimestamp key")
	}

	got, warn, err := Decode(md, time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if warn {
		t.Fatal("unexpected missing-timestamp warning")
	}
	if got != st {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, st)
	}
}

func TestDecodeLegacyLocalTimestamp(t *testing.T) {
	md := map[string]string{keyLocalTimestamp: "2021-03-04T12:30:00Z"}
	st, warn, err := Decode(md, time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if warn {
		t.Fatal("unexpected missing-timestamp warning for legacy key")
	}
	want, _ := time.Parse(time.RFC3339, "2021-03-04T12:30:00Z")
	if st.Mtime != float64(want.Unix()) {
		t.Fatalf("Mtime = %v, want %v", st.Mtime, want.Unix())
	}
	if st.Mode != 0 || st.UID != 0 || st.GID != 0 {
		t.Fatalf("expected zero mode/uid/gid for legacy metadata, got %+v", st)
	}
}

func TestDecodeFallsBackToServerTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	st, warn, err := Decode(map[string]string{}, now)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !warn {
		t.Fatal("expected missing-timestamp warning when no recognized key is present")
	}
	if st.Mtime != float64(now.Unix()) {
		t.Fatalf("Mtime = %v, want %v", st.Mtime, now.Unix())
	}
}

func TestDecodeFileStatPreferredOverLegacy(t *testing.T) {
	md := map[string]string{
		KeyFileStat:       `[420,1000,1000,1700000000]`,
		keyLocalTimestamp: "2000-01-01T00:00:00Z",
	}
	st, warn, err := Decode(md, time.Now())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if warn {
		t.Fatal("unexpected warning")
	}
	if st.Mode != 420 || st.Mtime != 1700000000 {
		t.Fatalf("expected filestat to win over legacy key, got %+v", st)
	}
}
