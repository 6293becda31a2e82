package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/internal/stream"
	"github.com/mohammad-safakhou/curricula/models"
)

// Topic cleaning strips the conversational wrapper from a research request
// ("i want to write a course about how to do woodworking" -> "Woodworking")
// so searches and report headers use the bare subject.

var topicTimePrefix = regexp.MustCompile(`(?i)^(?:today |now |right now |currently )?(?:i )?(?:let'?s |lets )?`)

// topicPrefixes are tried in order and only the first match is stripped.
// Longer patterns come first so "want to write a course about" is not cut
// down to "write a course about" leftovers.
var topicPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^want to write (?:a |the )?course (?:about |on |for )?(?:how to (?:do |be good at |become good at |get better at |improve at |master )?(?:playing )?)?`),
	regexp.MustCompile(`(?i)^want to create (?:a |the )?course (?:about |on |for )?(?:how to (?:do |be good at |become good at |get better at |improve at |master )?(?:playing )?)?`),
	regexp.MustCompile(`(?i)^want to build (?:a |the )?course (?:about |on |for )?(?:how to (?:do |be good at |become good at |get better at |improve at |master )?(?:playing )?)?`),
	regexp.MustCompile(`(?i)^want (?:a |the )?course (?:about |on |for )?`),
	regexp.MustCompile(`(?i)^write (?:a |the )?(?:course |curriculum )(?:about |on |for )?(?:how to (?:do )?)?`),
	regexp.MustCompile(`(?i)^create (?:a |the )?(?:course |curriculum )(?:about |on |for )?(?:how to (?:do )?)?`),
	regexp.MustCompile(`(?i)^build (?:a |the )?(?:course |curriculum )(?:about |on |for )?(?:how to (?:do )?)?`),
	regexp.MustCompile(`(?i)^want to research (?:on |about )?`),
	regexp.MustCompile(`(?i)^(?:can you |please )?research (?:on |about )?`),
	regexp.MustCompile(`(?i)^research (?:on |about )?`),
	regexp.MustCompile(`(?i)^(?:want to |need to )?learn (?:about |how to (?:do )?)?`),
	regexp.MustCompile(`(?i)^how to (?:do |be good at |become good at |get better at |improve at |master )?(?:playing )?`),
	regexp.MustCompile(`(?i)^how to (?:learn |study |practice )?`),
	regexp.MustCompile(`(?i)^need (?:courses?|training) (?:on |for |about )?`),
	regexp.MustCompile(`(?i)^(?:courses?|training) (?:on |for |about )?`),
	regexp.MustCompile(`(?i)^find (?:courses?|training) (?:on |for |about )?`),
	regexp.MustCompile(`(?i)^looking for (?:courses?|training) (?:on |for |about )?`),
	regexp.MustCompile(`(?i)^interested in (?:courses?|training|learning) (?:on |for |about )?`),
	regexp.MustCompile(`(?i)^help me with `),
}

// topicSuffixes are all applied, not first-match: "hvac training courses"
// needs two passes.
var topicSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i) courses?$`),
	regexp.MustCompile(`(?i) training programs?$`),
	regexp.MustCompile(`(?i) programs?$`),
	regexp.MustCompile(`(?i) training$`),
	regexp.MustCompile(`(?i) game$`),
}

var topicFillerPrefix = regexp.MustCompile(`(?i)^(?:playing |the |a |an |do )`)

// topicSpecialCases map whole cleaned topics to their canonical spelling.
var topicSpecialCases = map[string]string{
	"counter strike": "Counter-Strike",
	"counter-strike": "Counter-Strike",
	"cs go":          "CS:GO",
	"csgo":           "CS:GO",
	"cs2":            "CS2",
	"hvac":           "HVAC",
	"it":             "IT",
	"ai":             "AI",
}

// topicTermFixes repair acronyms inside title-cased topics, in order.
var topicTermFixes = []struct{ old, new string }{
	{"Hvac", "HVAC"},
	{"Ai ", "AI "},
	{"It ", "IT "},
	{" Ai", " AI"},
	{" It", " IT"},
}

// CleanTopic extracts the bare subject from a natural-language request.
func CleanTopic(input string) string {
	cleaned := strings.TrimSpace(strings.ToLower(input))
	cleaned = strings.TrimSpace(topicTimePrefix.ReplaceAllString(cleaned, ""))

	for _, re := range topicPrefixes {
		if loc := re.FindStringIndex(cleaned); loc != nil {
			cleaned = strings.TrimSpace(cleaned[loc[1]:])
			break
		}
	}
	for _, re := range topicSuffixes {
		cleaned = strings.TrimSpace(re.ReplaceAllString(cleaned, ""))
	}
	cleaned = strings.TrimSpace(topicFillerPrefix.ReplaceAllString(cleaned, ""))

	if cleaned == "" {
		return titleCase(strings.TrimSpace(input))
	}
	if canonical, ok := topicSpecialCases[cleaned]; ok {
		return canonical
	}

	result := titleCase(cleaned)
	for _, fix := range topicTermFixes {
		result = strings.ReplaceAll(result, fix.old, fix.new)
	}
	return result
}

// titleCase uppercases every letter that follows a non-letter and lowercases
// the rest, including after digits and hyphens ("counter-strike 2" ->
// "Counter-Strike 2").
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToUpper(r))
			}
			prevLetter = true
		} else {
			b.WriteRune(r)
			prevLetter = false
		}
	}
	return b.String()
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var competitorTypeOrder = map[string]int{
	models.ProviderIndustrySpecialist: 0,
	models.ProviderCertificationBody:  1,
	models.ProviderTradeSchool:        2,
	models.ProviderBootcamp:           3,
	models.ProviderMOOC:               4,
}

var certImportanceOrder = map[string]int{
	models.CertRequired:          0,
	models.CertHighlyRecommended: 1,
	models.CertOptional:          2,
}

var defaultAudiences = []string{
	"Entry-level beginners",
	"Career changers",
	"Experienced practitioners",
}

// DiscoverPlan runs the three discovery searches in parallel and assembles a
// draft plan with everything selected. Individual branch failures contribute
// nothing; only a fully empty landscape is an error.
func (e *Engine) DiscoverPlan(ctx context.Context, topic string, em Emitter) (*models.ResearchPlan, error) {
	var (
		wg          sync.WaitGroup
		competitors []models.PlanCompetitor
		certs       []models.PlanCertification
		audiences   []string
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		competitors = e.discoverCompetitors(ctx, topic, em)
	}()
	go func() {
		defer wg.Done()
		certs = e.discoverCertifications(ctx, topic, em)
	}()
	go func() {
		defer wg.Done()
		audiences = e.discoverAudiences(ctx, topic)
	}()
	wg.Wait()

	if len(competitors) == 0 && len(certs) == 0 {
		return nil, fmt.Errorf("no providers or certifications discovered for %q", topic)
	}

	plan := &models.ResearchPlan{
		Industry:          topic,
		Competitors:       competitors,
		Certifications:    certs,
		Audiences:         audiences,
		SelectedAudiences: []string{"All levels"},
	}
	for _, c := range competitors {
		plan.SelectedCompetitors = append(plan.SelectedCompetitors, c.Name)
	}
	for _, c := range certs {
		plan.SelectedCertifications = append(plan.SelectedCertifications, c.Name)
	}
	e.logger.Printf("plan discovery for %q: %d providers, %d certifications, %d audiences",
		topic, len(competitors), len(certs), len(audiences))
	return plan, nil
}

func (e *Engine) discoverCompetitors(ctx context.Context, topic string, em Emitter) []models.PlanCompetitor {
	e.emit(ctx, em, stream.Status("Finding training providers..."))

	core := topic
	if fields := strings.Fields(topic); len(fields) > 0 {
		core = fields[0]
	}
	queries := []string{
		fmt.Sprintf("best %s training programs providers", topic),
		fmt.Sprintf("top %s schools certification courses", topic),
		fmt.Sprintf("%s industry training companies professional", core),
		fmt.Sprintf("%s apprenticeship programs trade schools", core),
		fmt.Sprintf("%s certification training accredited", core),
	}

	var hits []models.SearchResult
	for _, q := range queries {
		results, err := e.searcher.Search(ctx, q, 10)
		if err != nil {
			e.logger.Printf("competitor search %q failed: %v", q, err)
			continue
		}
		hits = append(hits, results...)
	}
	if len(hits) == 0 {
		return nil
	}

	var b strings.Builder
	for i, r := range hits {
		if i >= 20 {
			break
		}
		fmt.Fprintf(&b, "- %s | %s | %s\n", r.Title, r.URL, clip(r.Snippet, 150))
	}

	prompt := fmt.Sprintf(`Analyze these search results for %s training and extract the main training providers.

SEARCH RESULTS:
%s
Extract 8-15 unique training providers. PRIORITIZE industry-specific providers over general MOOCs. Limit MOOCs (Coursera, Udemy, edX) to 2-3 at most.

Categorize each as one of: industry_specialist, certification_body, trade_school, bootcamp, mooc.

Return ONLY this JSON:
{"competitors": [{"name": "Provider Name", "type": "industry_specialist", "url": "https://..."}]}`, topic, b.String())

	provider, model, err := e.llm.ForTask("extraction")
	if err != nil {
		e.logger.Printf("competitor extraction unavailable: %v", err)
		return nil
	}
	raw, err := provider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  2000,
		"system":      "Extract training providers from search results. Return only valid JSON.",
	})
	if err != nil {
		e.logger.Printf("competitor extraction failed: %v", err)
		return nil
	}

	var parsed struct {
		Competitors []models.PlanCompetitor `json:"competitors"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractFirstJSON(raw)), &parsed); err != nil {
		e.logger.Printf("competitor extraction parse failed: %v", err)
		return nil
	}

	out := parsed.Competitors
	sort.SliceStable(out, func(i, j int) bool {
		return competitorTypeRank(out[i].Type) < competitorTypeRank(out[j].Type)
	})
	if len(out) > 12 {
		out = out[:12]
	}
	return out
}

func competitorTypeRank(t string) int {
	if rank, ok := competitorTypeOrder[t]; ok {
		return rank
	}
	return 5
}

func (e *Engine) discoverCertifications(ctx context.Context, topic string, em Emitter) []models.PlanCertification {
	e.emit(ctx, em, stream.Status("Finding industry certifications..."))

	queries := []string{
		fmt.Sprintf("%s certifications required", topic),
		fmt.Sprintf("%s professional certification programs", topic),
	}
	var hits []models.SearchResult
	for _, q := range queries {
		results, err := e.searcher.Search(ctx, q, 8)
		if err != nil {
			e.logger.Printf("certification search %q failed: %v", q, err)
			continue
		}
		hits = append(hits, results...)
	}
	if len(hits) == 0 {
		return nil
	}

	var b strings.Builder
	for i, r := range hits {
		if i >= 15 {
			break
		}
		fmt.Fprintf(&b, "- %s | %s\n", r.Title, clip(r.Snippet, 200))
	}

	prompt := fmt.Sprintf(`Analyze these search results and extract the main certifications for %s.

SEARCH RESULTS:
%s
Extract 4-8 relevant certifications with importance "required", "highly_recommended" or "optional".

Return ONLY this JSON:
{"certifications": [{"name": "Cert Name", "importance": "required"}]}`, topic, b.String())

	provider, model, err := e.llm.ForTask("extraction")
	if err != nil {
		e.logger.Printf("certification extraction unavailable: %v", err)
		return nil
	}
	raw, err := provider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  1500,
		"system":      "Extract certifications from search results. Return only valid JSON.",
	})
	if err != nil {
		e.logger.Printf("certification extraction failed: %v", err)
		return nil
	}

	var parsed struct {
		Certifications []models.PlanCertification `json:"certifications"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractFirstJSON(raw)), &parsed); err != nil {
		e.logger.Printf("certification extraction parse failed: %v", err)
		return nil
	}

	out := parsed.Certifications
	sort.SliceStable(out, func(i, j int) bool {
		return certImportanceRank(out[i].Importance) < certImportanceRank(out[j].Importance)
	})
	if len(out) > 8 {
		out = out[:8]
	}
	return out
}

func certImportanceRank(importance string) int {
	if rank, ok := certImportanceOrder[importance]; ok {
		return rank
	}
	return 3
}

func (e *Engine) discoverAudiences(ctx context.Context, topic string) []string {
	query := fmt.Sprintf("%s training who should take target audience career path", topic)
	results, err := e.searcher.Search(ctx, query, 8)
	if err != nil || len(results) == 0 {
		return defaultAudiences
	}

	var b strings.Builder
	for i, r := range results {
		if i >= 10 {
			break
		}
		fmt.Fprintf(&b, "- %s | %s\n", r.Title, clip(r.Snippet, 200))
	}

	prompt := fmt.Sprintf(`Analyze these search results and identify the typical target audiences for %s training.

SEARCH RESULTS:
%s
Identify 3-5 audience segments (e.g. "Entry-level technicians", "Career changers").

Return ONLY this JSON:
{"audiences": ["Entry-level technicians"]}`, topic, b.String())

	provider, model, err := e.llm.ForTask("extraction")
	if err != nil {
		return defaultAudiences
	}
	raw, err := provider.Generate(ctx, prompt, model, map[string]interface{}{
		"temperature": 0.0,
		"max_tokens":  1000,
		"system":      "Identify target audiences from search results. Return only valid JSON.",
	})
	if err != nil {
		return defaultAudiences
	}

	var parsed struct {
		Audiences []string `json:"audiences"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractFirstJSON(raw)), &parsed); err != nil || len(parsed.Audiences) == 0 {
		return defaultAudiences
	}
	if len(parsed.Audiences) > 5 {
		parsed.Audiences = parsed.Audiences[:5]
	}
	return parsed.Audiences
}

func selectedAudienceLabel(plan *models.ResearchPlan) string {
	if len(plan.SelectedAudiences) == 0 {
		return "All levels"
	}
	return strings.Join(plan.SelectedAudiences, ", ")
}

// formatPlanPresentation renders the plan for user review, grouped the way
// users reason about it: who teaches, what certifies, who it is for.
func formatPlanPresentation(plan *models.ResearchPlan, initial bool, iteration int) string {
	var lines []string
	if initial {
		lines = append(lines, fmt.Sprintf("## Research Plan: %s", plan.Industry))
	} else {
		lines = append(lines, fmt.Sprintf("## Updated Plan (v%d)", iteration))
	}
	lines = append(lines, "", "---", "")

	selectedComp := make(map[string]bool)
	for _, name := range plan.SelectedCompetitors {
		selectedComp[name] = true
	}
	lines = append(lines, fmt.Sprintf("**Training Providers:** (%d/%d selected)",
		len(plan.SelectedCompetitors), len(plan.Competitors)))

	providerGroups := []struct {
		ctype string
		label string
	}{
		{models.ProviderIndustrySpecialist, "Industry Specialists"},
		{models.ProviderCertificationBody, "Certification Bodies"},
		{models.ProviderTradeSchool, "Trade Schools"},
		{models.ProviderBootcamp, "Bootcamps"},
		{models.ProviderMOOC, "Online Platforms"},
	}
	for _, group := range providerGroups {
		var names []string
		for _, c := range plan.Competitors {
			if c.Type == group.ctype && selectedComp[c.Name] {
				names = append(names, c.Name)
			}
		}
		if len(names) > 0 {
			lines = append(lines, fmt.Sprintf("- %s: %s", group.label, strings.Join(names, ", ")))
		}
	}
	lines = append(lines, "", "---", "")

	selectedCert := make(map[string]bool)
	for _, name := range plan.SelectedCertifications {
		selectedCert[name] = true
	}
	lines = append(lines, fmt.Sprintf("**Certifications:** (%d/%d selected)",
		len(plan.SelectedCertifications), len(plan.Certifications)))

	certGroups := []struct {
		importance string
		label      string
	}{
		{models.CertRequired, "Required"},
		{models.CertHighlyRecommended, "Recommended"},
		{"", "Optional"},
	}
	for _, group := range certGroups {
		var names []string
		for _, c := range plan.Certifications {
			match := c.Importance == group.importance
			if group.importance == "" {
				match = c.Importance != models.CertRequired && c.Importance != models.CertHighlyRecommended
			}
			if match && selectedCert[c.Name] {
				names = append(names, c.Name)
			}
		}
		if len(names) > 0 {
			lines = append(lines, fmt.Sprintf("- %s: %s", group.label, strings.Join(names, ", ")))
		}
	}
	lines = append(lines, "", "---", "")

	audienceLabel := selectedAudienceLabel(plan)
	lines = append(lines, "**Target Audience:**")
	var audienceNames []string
	for _, aud := range plan.Audiences {
		if audienceLabel == "All levels" || selectedAudienceMatches(plan, aud) {
			audienceNames = append(audienceNames, aud)
		}
	}
	if len(audienceNames) == 0 {
		audienceNames = []string{audienceLabel}
	}
	lines = append(lines, fmt.Sprintf("- %s", strings.Join(audienceNames, ", ")))
	lines = append(lines, "", "---", "")

	lines = append(lines,
		"**Current Selection:**",
		fmt.Sprintf("- Topic: %s", plan.Industry),
		fmt.Sprintf("- Providers: %d", len(plan.SelectedCompetitors)),
		fmt.Sprintf("- Certifications: %d", len(plan.SelectedCertifications)),
		fmt.Sprintf("- Audience: %s", audienceLabel),
		"", "---", "")

	exampleProvider := "Provider X"
	if len(plan.Competitors) > 0 {
		exampleProvider = plan.Competitors[len(plan.Competitors)-1].Name
	}
	exampleCert := "Certification Y"
	if len(plan.Certifications) > 0 {
		exampleCert = plan.Certifications[0].Name
	}

	lines = append(lines,
		"**Edit this plan** (tell me in your own words):",
		"",
		"**Providers:**",
		fmt.Sprintf(`- "Remove %s"`, exampleProvider),
		`- "Add [any provider name]" - even if not listed above`,
		`- "Only use X, Y, Z" - specify exactly which providers`,
		"",
		"**Certifications:**",
		fmt.Sprintf(`- "Remove %s"`, exampleCert),
		`- "Add [any certification]" - even if not listed above`,
		"",
		"**Target Audience:**",
		`- Just tell me who: "Target real starters" or "For senior professionals"`,
		"- I'll use your exact words, no mapping.",
		"",
		`Type **"Proceed"** or **"Looks good"** when ready.`,
		"")

	return strings.Join(lines, "\n")
}

func selectedAudienceMatches(plan *models.ResearchPlan, audience string) bool {
	for _, sel := range plan.SelectedAudiences {
		if sel == audience {
			return true
		}
	}
	return false
}

func formatConfirmationMessage(plan *models.ResearchPlan) string {
	certsDisplay := strings.Join(firstN(plan.SelectedCertifications, 3), ", ")
	if extra := len(plan.SelectedCertifications) - 3; extra > 0 {
		certsDisplay += fmt.Sprintf(" (+%d more)", extra)
	}

	lines := []string{
		"## Plan Confirmed - Starting Research",
		"",
		fmt.Sprintf("I'll now conduct a comprehensive analysis of **%s** training programs.", plan.Industry),
		"",
		"**Research scope:**",
		fmt.Sprintf("- %d training providers", len(plan.SelectedCompetitors)),
		fmt.Sprintf("- %d certifications (%s)", len(plan.SelectedCertifications), certsDisplay),
		fmt.Sprintf("- Target: %s", selectedAudienceLabel(plan)),
		"",
		"---",
		"",
		"*Searching course catalogs and analyzing curricula...*",
		"*This typically takes 1-2 minutes.*",
	}
	return strings.Join(lines, "\n")
}

func firstN(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
