package service

import (
	"math"
	"testing"
	"time"

	"centroid/internal/coi"
	"centroid/internal/embedding"
)

func TestSnippetKey_RoundTrips(t *testing.T) {
	cases := []struct {
		docID string
		subID int
	}{
		{"doc-1", 0},
		{"doc-with-a/slash", 3},
		{"d", 42},
	}
	for _, c := range cases {
		key := snippetKey(c.docID, c.subID)
		gotDoc, gotSub, err := parseSnippetKey(key)
		if err != nil {
			t.Fatalf("parseSnippetKey(%q): %v", key, err)
		}
		if gotDoc != c.docID || gotSub != c.subID {
			t.Fatalf("round trip mismatch: got (%q,%d), want (%q,%d)", gotDoc, gotSub, c.docID, c.subID)
		}
	}
}

func TestParseSnippetKey_Malformed(t *testing.T) {
	if _, _, err := parseSnippetKey("no-slash-here"); err == nil {
		t.Fatalf("expected error for key without a sub_id separator")
	}
}

func unitVec(dim, hot int) embedding.Vector {
	v := make(embedding.Vector, dim)
	v[hot] = 1
	return v
}

func TestCentroidQuery_EmptyReturnsFalse(t *testing.T) {
	if _, ok := centroidQuery(nil); ok {
		t.Fatalf("expected ok=false for no CoIs")
	}
}

func TestCentroidQuery_IsUnitLength(t *testing.T) {
	cois := []coi.CoI{
		{ID: "a", Point: unitVec(4, 0)},
		{ID: "b", Point: unitVec(4, 1)},
	}
	q, ok := centroidQuery(cois)
	if !ok {
		t.Fatalf("expected ok=true")
	}
	var sumSq float64
	for _, x := range q {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1) > 1e-6 {
		t.Fatalf("expected unit-length centroid, got norm %v", norm)
	}
	// equidistant from both CoI points: the centroid of two orthonormal
	// vectors has equal components on both axes.
	if math.Abs(float64(q[0])-float64(q[1])) > 1e-6 {
		t.Fatalf("expected symmetric centroid, got %v", q)
	}
}

func TestCentroidQuery_SingleCoIIsItsOwnPoint(t *testing.T) {
	p := unitVec(3, 2)
	q, ok := centroidQuery([]coi.CoI{{ID: "only", Point: p}})
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if embedding.Dot(q, p) < 1-1e-6 {
		t.Fatalf("expected centroid of one CoI to equal its point, got dot=%v", embedding.Dot(q, p))
	}
}

// fakeClock lets RecordInteractions-adjacent tests pin "now" without
// sleeping, the same Clock seam the teacher's service package exposes.
type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

func TestWithClock_OverridesNow(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &Service{clock: SystemClock{}}
	WithClock(fakeClock{t: fixed})(s)
	if !s.clock.Now().Equal(fixed) {
		t.Fatalf("expected clock override to take effect, got %v", s.clock.Now())
	}
}
