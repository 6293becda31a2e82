package agent

import (
	"io"
	"log"
	"strings"
	"testing"

	"github.com/mohammad-safakhou/curricula/models"
)

func TestClassifyPriceTier(t *testing.T) {
	cases := []struct {
		price string
		want  string
	}{
		{"", models.TierPremium},
		{"Not available", models.TierPremium},
		{"Contact us for pricing", models.TierPremium},
		{"$1,200", models.TierPremium},
		{"$500", models.TierPremium},
		{"$299", models.TierMid},
		{"$100", models.TierMid},
		{"$99", models.TierBudget},
		{"$49/month", models.TierBudget},
		{"Free", models.TierBudget},
		{"$0", models.TierBudget},
		{"free audit available", models.TierBudget},
		{"subscription per month", models.TierMid},
	}
	for _, tc := range cases {
		if got := classifyPriceTier(tc.price); got != tc.want {
			t.Fatalf("classifyPriceTier(%q) = %q, want %q", tc.price, got, tc.want)
		}
	}
}

func TestCourseTierPrefersAssignedTier(t *testing.T) {
	c := models.Course{Price: "$2,000", PriceTier: models.TierBudget}
	if got := courseTier(c); got != models.TierBudget {
		t.Fatalf("assigned tier ignored: %q", got)
	}
	c.PriceTier = ""
	if got := courseTier(c); got != models.TierPremium {
		t.Fatalf("fallback classification = %q", got)
	}
}

func TestMaxPriceNumber(t *testing.T) {
	if got, ok := maxPriceNumber("$1,200 - $1,800"); !ok || got != 1800 {
		t.Fatalf("range = %d %v", got, ok)
	}
	if _, ok := maxPriceNumber("free trial"); ok {
		t.Fatal("digitless price reported a number")
	}
}

func TestRunResponsePassesClarifyingQuestionThrough(t *testing.T) {
	e := NewEngine(Deps{Config: testAgentConfig(), Logger: log.New(io.Discard, "", 0)})
	state := &models.ConversationState{
		IsClarifyingQuestion: true,
		PendingResponse:      "Which region should I focus on?",
		ResearchData:         models.ResearchData{Courses: []models.Course{{Name: "C"}}},
	}
	if got := e.runResponse(state); got != "Which region should I focus on?" {
		t.Fatalf("passthrough = %q", got)
	}
}

func TestRunResponseWithoutData(t *testing.T) {
	e := NewEngine(Deps{Config: testAgentConfig(), Logger: log.New(io.Discard, "", 0)})
	if got := e.runResponse(&models.ConversationState{}); got != noDataPrompt {
		t.Fatalf("empty state reply = %q", got)
	}
}

func TestRenderReportTiersAndNumbering(t *testing.T) {
	data := models.ResearchData{Courses: []models.Course{
		{
			Name:          "HVAC Excellence Master Program",
			Provider:      "HVAC Excellence",
			URL:           "https://hvacexcellence.example.com",
			Price:         "$750",
			Duration:      "12 weeks",
			Certification: "EPA 608",
			Students:      "12,000+",
			Curriculum: []models.Module{
				{Name: "Refrigeration Cycle", Description: "Theory and practice"},
				{Name: "Safety Basics"},
			},
		},
		{
			Name:     "HVAC Career Track",
			Provider: "Penn Foster",
			URL:      "https://pennfoster.example.com",
			Price:    "$299",
		},
		{
			Name:     "Intro to HVAC",
			Provider: "Coursera",
			URL:      "https://coursera.example.com",
			Price:    "Free",
		},
	}}

	got := renderReport(data, "HVAC")

	for _, want := range []string{
		"# Comprehensive Guide to Online HVAC Training",
		"**3 providers**",
		"## Top 3 Online HVAC Courses Ranked by Popularity",
		"Based on enrollment data, reviews, and industry recognition:",
		"### Tier 1: Market Leaders (Highest Enrollment/Visibility)",
		"### Tier 2: Mid-Range Options",
		"### Tier 3: Budget-Friendly / Free Options",
		"#### 1. HVAC Excellence Master Program",
		"#### 2. HVAC Career Track",
		"#### 3. Intro to HVAC",
		"| **Provider** | HVAC Excellence |",
		"| **Price** | $299 |",
		"| **Enrollment** | 12,000+ |",
		"**Complete Curriculum (2 Modules):**",
		"1. **Refrigeration Cycle** - Theory and practice",
		"2. **Safety Basics**",
		"**Key Modules:** Curriculum details not available from source.",
		"## Complete Module Inventory",
		"## Key Insights",
		"Available certifications include: EPA 608",
		"### Top Platforms",
		"- Penn Foster",
		"## Data Sources",
		"- https://coursera.example.com",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("report missing %q:\n%s", want, clip(got, 1500))
		}
	}

	// Numbering is continuous across tiers, so no course repeats "#### 1.".
	if strings.Count(got, "#### 1. ") != 1 {
		t.Fatalf("tier numbering restarted:\n%s", clip(got, 1500))
	}
}

func TestRenderReportComputesInventoryFromCurricula(t *testing.T) {
	data := models.ResearchData{Courses: []models.Course{
		{Name: "Course A", Provider: "P1", URL: "https://a.example.com", Curriculum: []models.Module{
			{Name: "Safety Basics"},
			{Name: "Brazing"},
		}},
		{Name: "Course B", Provider: "P2", URL: "https://b.example.com", Curriculum: []models.Module{
			{Name: "safety basics"}, // case-insensitive match with Course A
		}},
	}}

	got := renderReport(data, "Welding")

	if !strings.Contains(got, "### MEDIUM FREQUENCY (Found in 2 courses)") {
		t.Fatalf("medium bucket missing:\n%s", got)
	}
	if !strings.Contains(got, "- **Safety Basics** - Found in 2 courses. (Sources: Course A, Course B)") {
		t.Fatalf("shared module line wrong:\n%s", got)
	}
	if !strings.Contains(got, "### NICHE/SPECIALIZED (Found in 1 course)") {
		t.Fatalf("niche bucket missing:\n%s", got)
	}
	if !strings.Contains(got, "- **Brazing** - (Source: Course A)") {
		t.Fatalf("single-course module line wrong:\n%s", got)
	}
}

func TestRenderReportUsesPrecomputedInventory(t *testing.T) {
	data := models.ResearchData{
		Courses: []models.Course{{Name: "C", Provider: "P", URL: "https://c.example.com"}},
		ModuleInventory: []models.ModuleStat{
			{Name: "Refrigeration", Count: 7, Importance: models.ImportanceVital},
			{Name: "Hydronics", Count: 1, Importance: models.ImportanceNiche},
		},
	}

	got := renderReport(data, "HVAC")

	if !strings.Contains(got, "### VITAL (Found in 5+ courses)") {
		t.Fatalf("vital bucket missing:\n%s", got)
	}
	if !strings.Contains(got, "- **Refrigeration** - Found in 7 courses.") {
		t.Fatalf("stat line wrong:\n%s", got)
	}
	if !strings.Contains(got, "### NICHE/SPECIALIZED (Found in 1 course)") {
		t.Fatalf("niche bucket missing:\n%s", got)
	}
}

func TestRenderReportCertificationFallback(t *testing.T) {
	data := models.ResearchData{Courses: []models.Course{
		{Name: "C1", Provider: "P", URL: "https://c1.example.com", Certification: "N/A"},
	}}
	got := renderReport(data, "HVAC")
	if !strings.Contains(got, "Various completion certificates and professional certifications available.") {
		t.Fatalf("certification fallback missing:\n%s", got)
	}
}
