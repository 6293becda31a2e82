package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/models"
)

const (
	maxDiscoveryURLs    = 80
	maxPlanCompetitors  = 8
	maxPlanCertQueries  = 5
	discoveryResultsPer = 10
)

// coursePlatforms are searched on every discovery run, each tagged with its
// provider name for the fallback extraction.
var coursePlatforms = []struct {
	Site     string
	Provider string
}{
	{"udemy.com", "Udemy"},
	{"coursera.org", "Coursera"},
	{"edx.org", "edX"},
	{"linkedin.com/learning", "LinkedIn Learning"},
	{"pluralsight.com", "Pluralsight"},
	{"skillshare.com", "Skillshare"},
	{"udacity.com", "Udacity"},
	{"futurelearn.com", "FutureLearn"},
	{"codecademy.com", "Codecademy"},
	{"datacamp.com", "DataCamp"},
	{"alison.com", "Alison"},
	{"classcentral.com", "Class Central"},
	{"khanacademy.org", "Khan Academy"},
}

// skipPathFragments mark non-course pages that search results drag in.
var skipPathFragments = []string{
	"/blog/", "/help/", "/about/", "/support/", "/careers/",
	"/terms/", "/privacy/", "/search", "/browse/", "/category/",
	"/topics/", "/tags/", "/author/",
}

// CourseDiscoveryTool is the bulk discovery operation: a parallel search
// fan-out across course platforms plus plan-selected competitors and
// certifications, followed by LLM extraction into structured courses.
type CourseDiscoveryTool struct {
	deps Deps
}

func (t *CourseDiscoveryTool) Name() string { return "discover_courses_with_rankings" }

func (t *CourseDiscoveryTool) Description() string {
	return "Discover courses across all major platforms with pricing, curricula, module frequency and price tiers"
}

func (t *CourseDiscoveryTool) Parameters() map[string]string {
	return map[string]string{
		"topic":          "the course topic to discover",
		"competitors":    "optional list of competitor names or domains to include",
		"certifications": "optional list of certification names to include",
	}
}

func (t *CourseDiscoveryTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	topic := stringArg(args, "topic")
	if topic == "" {
		topic = stringArg(args, "query")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	competitors := stringSliceArg(args, "competitors")
	certifications := stringSliceArg(args, "certifications")

	queries := buildDiscoveryQueries(topic, competitors, certifications)
	if progress != nil {
		progress(fmt.Sprintf("Running %d course searches for %q...", len(queries), topic))
	}

	hits := t.fanOutSearches(ctx, queries, progress)
	hits = dedupeDiscoveryHits(hits, maxDiscoveryURLs)
	if len(hits) == 0 {
		return nil, fmt.Errorf("no course pages found for %q", topic)
	}
	if progress != nil {
		progress(fmt.Sprintf("Collected %d unique course pages, extracting details...", len(hits)))
	}

	courses, trending, err := t.extractCourses(ctx, topic, hits)
	if err != nil {
		t.deps.Logger.Printf("LLM course extraction failed, using platform fallback: %v", err)
		courses = fallbackCourses(hits)
	}
	if len(courses) == 0 {
		courses = fallbackCourses(hits)
	}
	if len(courses) == 0 {
		return nil, fmt.Errorf("could not extract any courses for %q", topic)
	}

	data := models.CourseDiscoveryData{
		Courses:        courses,
		TrendingTopics: trending,
		SearchedURLs:   hitURLs(hits),
	}
	data.Tiers = tierCourses(courses)
	data.PriceAnalysis = analyzePrices(courses, data.Tiers)
	data.LessonFrequency = lessonFrequency(courses)
	data.ModuleInventory = moduleInventory(data.LessonFrequency)

	if progress != nil {
		progress(fmt.Sprintf("Extracted %d courses across %d price tiers", len(courses), len(data.Tiers)))
	}
	return data, nil
}

type discoveryHit struct {
	models.SearchResult
	Provider string
}

func buildDiscoveryQueries(topic string, competitors, certifications []string) []struct {
	Query    string
	Provider string
} {
	var queries []struct {
		Query    string
		Provider string
	}
	add := func(q, provider string) {
		queries = append(queries, struct {
			Query    string
			Provider string
		}{q, provider})
	}

	for _, p := range coursePlatforms {
		add(fmt.Sprintf("site:%s %s course", p.Site, topic), p.Provider)
	}
	for i, c := range competitors {
		if i >= maxPlanCompetitors {
			break
		}
		if looksLikeDomain(c) {
			add(fmt.Sprintf("site:%s %s", c, topic), c)
		} else {
			add(fmt.Sprintf("%s %s course", c, topic), c)
		}
	}
	for i, cert := range certifications {
		if i >= maxPlanCertQueries {
			break
		}
		add(fmt.Sprintf("%s certification course", cert), "")
	}
	return queries
}

func looksLikeDomain(s string) bool {
	return strings.Contains(s, ".") && !strings.Contains(s, " ")
}

// fanOutSearches dispatches all queries concurrently. Branch failures are
// logged and skipped.
func (t *CourseDiscoveryTool) fanOutSearches(ctx context.Context, queries []struct {
	Query    string
	Provider string
}, progress ProgressFunc) []discoveryHit {
	results := make([][]discoveryHit, len(queries))
	var wg sync.WaitGroup
	sem := make(chan struct{}, 6)
	for i, q := range queries {
		wg.Add(1)
		go func(i int, query, provider string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			hits, err := t.deps.Searcher.Search(ctx, query, discoveryResultsPer)
			if err != nil {
				t.deps.Logger.Printf("discovery search %q failed: %v", query, err)
				return
			}
			branch := make([]discoveryHit, 0, len(hits))
			for _, h := range hits {
				branch = append(branch, discoveryHit{SearchResult: h, Provider: provider})
			}
			results[i] = branch
		}(i, q.Query, q.Provider)
	}
	wg.Wait()

	var all []discoveryHit
	for _, branch := range results {
		all = append(all, branch...)
	}
	return all
}

// dedupeDiscoveryHits normalizes URLs (query strings dropped), filters
// non-course paths and caps the set.
func dedupeDiscoveryHits(hits []discoveryHit, cap int) []discoveryHit {
	seen := make(map[string]bool)
	var out []discoveryHit
	for _, h := range hits {
		u, err := url.Parse(h.URL)
		if err != nil || u.Host == "" {
			continue
		}
		u.RawQuery = ""
		u.Fragment = ""
		normalized := u.String()

		lowerPath := strings.ToLower(u.Path)
		skip := false
		for _, frag := range skipPathFragments {
			if strings.Contains(lowerPath, frag) {
				skip = true
				break
			}
		}
		if skip || seen[normalized] {
			continue
		}
		seen[normalized] = true
		h.URL = normalized
		out = append(out, h)
		if len(out) >= cap {
			break
		}
	}
	return out
}

func hitURLs(hits []discoveryHit) []string {
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.URL)
	}
	return out
}

// extractCourses asks the extraction model to turn raw search hits into
// structured course entries.
func (t *CourseDiscoveryTool) extractCourses(ctx context.Context, topic string, hits []discoveryHit) ([]models.Course, []string, error) {
	provider, model, err := t.deps.LLM.ForTask("extraction")
	if err != nil {
		return nil, nil, err
	}

	var listing strings.Builder
	for i, h := range hits {
		fmt.Fprintf(&listing, "%d. %s\n   URL: %s\n   %s\n", i+1, h.Title, h.URL, h.Snippet)
	}

	prompt := fmt.Sprintf(`These are search results for courses about %q. Extract every distinct course offering.

Respond ONLY with valid JSON:
{
  "courses": [
    {
      "name": "course title",
      "provider": "platform or school name",
      "url": "course page url",
      "price": "price as shown, e.g. $499, Free, $29/month, or empty if unknown",
      "duration": "e.g. 6 weeks, 40 hours, or empty",
      "certification": "certificate offered, or empty",
      "rating": "e.g. 4.7, or empty",
      "students": "enrollment count if shown, or empty",
      "curriculum": [{"name": "module name", "description": "one line"}]
    }
  ],
  "trending_topics": ["recurring themes across these courses"]
}

Rules: only include entries that are clearly actual courses. Use the URL given. Infer curriculum modules from titles and snippets where visible; otherwise leave curriculum empty. No text outside the JSON.

Search results:
%s`, topic, listing.String())

	raw, err := provider.Generate(ctx, prompt, model, map[string]interface{}{"max_tokens": 8000})
	if err != nil {
		return nil, nil, fmt.Errorf("extraction call: %w", err)
	}

	var parsed struct {
		Courses        []models.Course `json:"courses"`
		TrendingTopics []string        `json:"trending_topics"`
	}
	if err := json.Unmarshal([]byte(llm.ExtractFirstJSON(raw)), &parsed); err != nil {
		return nil, nil, fmt.Errorf("extraction parse: %w", err)
	}

	for i := range parsed.Courses {
		if parsed.Courses[i].Provider == "" {
			parsed.Courses[i].Provider = baseDomain(parsed.Courses[i].URL)
		}
		parsed.Courses[i].PriceTier = priceTier(parsed.Courses[i].Price)
	}
	return parsed.Courses, parsed.TrendingTopics, nil
}

// fallbackCourses derives minimal course entries straight from search hits
// when extraction is unavailable.
func fallbackCourses(hits []discoveryHit) []models.Course {
	out := make([]models.Course, 0, len(hits))
	for _, h := range hits {
		provider := h.Provider
		if provider == "" {
			provider = baseDomain(h.URL)
		}
		out = append(out, models.Course{
			Name:      h.Title,
			Provider:  provider,
			URL:       h.URL,
			PriceTier: models.TierPremium,
		})
	}
	return out
}

var priceNumberRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)`)

// priceTier buckets a displayed price string. Unknown prices default to
// premium so reports never undersell the market.
func priceTier(price string) string {
	p := strings.ToLower(strings.TrimSpace(price))
	if p == "" {
		return models.TierPremium
	}
	if strings.Contains(p, "free") || strings.Contains(p, "audit") {
		return models.TierBudget
	}
	if strings.Contains(p, "/month") || strings.Contains(p, "per month") || strings.Contains(p, "/mo") {
		return models.TierMid
	}
	value, ok := parsePrice(p)
	if !ok {
		return models.TierPremium
	}
	switch {
	case value >= 500:
		return models.TierPremium
	case value >= 100:
		return models.TierMid
	default:
		return models.TierBudget
	}
}

func parsePrice(p string) (float64, bool) {
	match := priceNumberRe.FindString(p)
	if match == "" {
		return 0, false
	}
	match = strings.ReplaceAll(match, ",", "")
	v, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func tierCourses(courses []models.Course) map[string][]models.Course {
	tiers := make(map[string][]models.Course)
	for i := range courses {
		if courses[i].PriceTier == "" {
			courses[i].PriceTier = priceTier(courses[i].Price)
		}
		tiers[courses[i].PriceTier] = append(tiers[courses[i].PriceTier], courses[i])
	}
	return tiers
}

func analyzePrices(courses []models.Course, tiers map[string][]models.Course) models.PriceAnalysis {
	pa := models.PriceAnalysis{
		PremiumCount: len(tiers[models.TierPremium]),
		MidCount:     len(tiers[models.TierMid]),
		BudgetCount:  len(tiers[models.TierBudget]),
	}
	first := true
	for _, c := range courses {
		v, ok := parsePrice(strings.ToLower(c.Price))
		if !ok {
			continue
		}
		if first || v < pa.MinPrice {
			pa.MinPrice = v
		}
		if first || v > pa.MaxPrice {
			pa.MaxPrice = v
		}
		first = false
	}
	pa.Summary = fmt.Sprintf("%d premium, %d mid-tier, %d budget offerings", pa.PremiumCount, pa.MidCount, pa.BudgetCount)
	return pa
}

// lessonFrequency counts normalized module names across all curricula.
func lessonFrequency(courses []models.Course) []models.LessonCount {
	counts := make(map[string]int)
	names := make(map[string]string)
	for _, c := range courses {
		for _, m := range c.Curriculum {
			key := strings.ToLower(strings.TrimSpace(m.Name))
			if key == "" {
				continue
			}
			counts[key]++
			if _, ok := names[key]; !ok {
				names[key] = strings.TrimSpace(m.Name)
			}
		}
	}

	out := make([]models.LessonCount, 0, len(counts))
	for key, n := range counts {
		out = append(out, models.LessonCount{Name: names[key], Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// moduleInventory assigns importance buckets from frequency counts.
func moduleInventory(freq []models.LessonCount) []models.ModuleStat {
	out := make([]models.ModuleStat, 0, len(freq))
	for _, f := range freq {
		importance := models.ImportanceNiche
		switch {
		case f.Count >= 5:
			importance = models.ImportanceVital
		case f.Count >= 3:
			importance = models.ImportanceHigh
		case f.Count == 2:
			importance = models.ImportanceMedium
		}
		out = append(out, models.ModuleStat{Name: f.Name, Count: f.Count, Importance: importance})
	}
	return out
}

// LessonExtractionTool scrapes one course page and extracts its full
// curriculum.
type LessonExtractionTool struct {
	deps Deps
}

func (t *LessonExtractionTool) Name() string { return "extract_course_lessons" }

func (t *LessonExtractionTool) Description() string {
	return "Visit one course page and extract its complete lesson-by-lesson curriculum"
}

func (t *LessonExtractionTool) Parameters() map[string]string {
	return map[string]string{
		"url":         "the course page url to extract from",
		"course_name": "optional course name for context",
	}
}

func (t *LessonExtractionTool) Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error) {
	pageURL := stringArg(args, "url")
	if pageURL == "" {
		return nil, fmt.Errorf("url is required")
	}
	courseName := stringArg(args, "course_name")

	if progress != nil {
		progress(fmt.Sprintf("Fetching course page %s...", pageURL))
	}
	page, err := t.deps.Scraper.Fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("scrape: %w", err)
	}

	curriculum, err := t.extractCurriculum(ctx, courseName, page.Title, page.Text, page.Headings, page.ListItems)
	if err != nil {
		t.deps.Logger.Printf("curriculum extraction failed for %s, using page outline: %v", pageURL, err)
		curriculum = outlineCurriculum(courseName, page.Title, page.Headings, page.ListItems)
	}
	if len(curriculum.Modules) == 0 {
		curriculum = outlineCurriculum(courseName, page.Title, page.Headings, page.ListItems)
	}
	if len(curriculum.Modules) == 0 {
		return nil, fmt.Errorf("no curriculum found on %s", pageURL)
	}

	curriculum.URL = pageURL
	curriculum.Provider = baseDomain(pageURL)
	if progress != nil {
		progress(fmt.Sprintf("Extracted %d modules from %s", len(curriculum.Modules), curriculum.CourseName))
	}
	return curriculum, nil
}

func (t *LessonExtractionTool) extractCurriculum(ctx context.Context, courseName, pageTitle, text string, headings, listItems []string) (models.Curriculum, error) {
	provider, model, err := t.deps.LLM.ForTask("extraction")
	if err != nil {
		return models.Curriculum{}, err
	}

	if len(text) > 12000 {
		text = text[:12000]
	}
	prompt := fmt.Sprintf(`Extract the curriculum from this course page.

Course name hint: %q
Page title: %q
Page headings: %s
Page list items: %s

Page text:
%s

Respond ONLY with valid JSON:
{"course_name": "...", "modules": [{"name": "module or lesson name", "description": "one line, or empty"}]}

Only include actual course content modules, not navigation or marketing sections.`,
		courseName, pageTitle,
		strings.Join(truncateList(headings, 40), "; "),
		strings.Join(truncateList(listItems, 80), "; "),
		text)

	raw, err := provider.Generate(ctx, prompt, model, map[string]interface{}{"max_tokens": 4000})
	if err != nil {
		return models.Curriculum{}, fmt.Errorf("extraction call: %w", err)
	}

	var parsed models.Curriculum
	if err := json.Unmarshal([]byte(llm.ExtractFirstJSON(raw)), &parsed); err != nil {
		return models.Curriculum{}, fmt.Errorf("extraction parse: %w", err)
	}
	if parsed.CourseName == "" {
		parsed.CourseName = firstNonEmpty(courseName, pageTitle)
	}
	return parsed, nil
}

// outlineCurriculum builds a curriculum from the page structure when the
// model cannot.
func outlineCurriculum(courseName, pageTitle string, headings, listItems []string) models.Curriculum {
	c := models.Curriculum{CourseName: firstNonEmpty(courseName, pageTitle)}
	source := headings
	if len(source) < 2 {
		source = listItems
	}
	for _, h := range truncateList(source, 30) {
		c.Modules = append(c.Modules, models.Module{Name: h})
	}
	return c
}

func truncateList(items []string, n int) []string {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
