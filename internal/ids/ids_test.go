package ids

import (
	"sort"
	"testing"
	"time"
)

func TestGeneratorFollowsClock(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	g := NewGenerator(func() time.Time { return at })

	id := g.New()
	got, ok := Time(id)
	if !ok {
		t.Fatalf("expected %q to parse as a ULID", id)
	}
	if !got.Equal(at) {
		t.Fatalf("expected timestamp %v, got %v", at, got)
	}
}

func TestGeneratorMonotonicWithinMillisecond(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)
	g := NewGenerator(func() time.Time { return at })

	out := make([]string, 50)
	for i := range out {
		out[i] = g.New()
	}
	if !sort.StringsAreSorted(out) {
		t.Fatalf("ids issued in one millisecond are not sorted: %v", out)
	}
}

func TestTimeRejectsForeignIDs(t *testing.T) {
	if _, ok := Time("role-admin"); ok {
		t.Fatalf("expected non-ULID id to be rejected")
	}
	if _, ok := Time(New()); !ok {
		t.Fatalf("expected default generator id to parse")
	}
}
