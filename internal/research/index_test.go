package research

import (
	"strings"
	"testing"
)

func newTestIndex(t *testing.T) *FindingsIndex {
	t.Helper()
	idx, err := NewFindingsIndex()
	if err != nil {
		t.Fatalf("NewFindingsIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestFindingsIndexRelevant(t *testing.T) {
	idx := newTestIndex(t)
	findings := strings.Join([]string{
		"Penn Foster offers an online HVAC technician program priced at 989 dollars with flexible payment plans.",
		"SkillCat provides a mobile-first EPA 608 certification course popular with field technicians.",
		"The HVAC School podcast hosted by Bryan Orr covers refrigeration cycles and diagnostics weekly.",
	}, "\n\n")
	if err := idx.Add("competitive", findings); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Len() != 3 {
		t.Fatalf("Len = %d, want 3", idx.Len())
	}

	hits := idx.Relevant("EPA certification course", 2)
	if len(hits) == 0 {
		t.Fatalf("no hits for certification query")
	}
	if !strings.Contains(hits[0], "SkillCat") {
		t.Fatalf("best hit = %q, want the SkillCat block", hits[0])
	}

	if got := idx.Relevant("", 5); got != nil {
		t.Fatalf("empty query returned %v", got)
	}
	if got := idx.Relevant("EPA", 0); got != nil {
		t.Fatalf("zero limit returned %v", got)
	}
}

func TestFindingsIndexCovers(t *testing.T) {
	idx := newTestIndex(t)
	err := idx.Add("expertise", "The Building HVAC Science blog publishes monthly articles on heat pump commissioning practices.")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !idx.Covers("heat pump commissioning") {
		t.Fatalf("covered subject reported as missing")
	}
	// All terms must match, so a half-covered name does not count.
	if idx.Covers("heat pump rebates") {
		t.Fatalf("uncovered subject reported as covered")
	}
	if idx.Covers("") {
		t.Fatalf("empty subject reported as covered")
	}
}

func TestFindingsIndexSkipsShortBlocks(t *testing.T) {
	idx := newTestIndex(t)
	text := "## Heading\n\n---\n\nA substantial paragraph about course pricing across the major vocational platforms."
	if err := idx.Add("competitive", text); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx.Len() != 1 {
		t.Fatalf("Len = %d, want only the long block", idx.Len())
	}
}
