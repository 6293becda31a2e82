package agent

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/curricula/models"
)

const noDataPrompt = "I don't have any course data yet. Please provide a specific topic or industry " +
	"you'd like me to research (e.g., 'data science courses', 'Python programming', 'digital marketing')."

// runResponse renders the turn's final reply. Clarifying questions pass
// through verbatim; otherwise the full report is generated directly from the
// collected data so every course appears, with no model in the loop to
// truncate or invent anything.
func (e *Engine) runResponse(state *models.ConversationState) string {
	if state.IsClarifyingQuestion && state.PendingResponse != "" {
		return state.PendingResponse
	}
	data := state.ResearchData
	if len(data.Courses) == 0 && len(data.ModuleInventory) == 0 {
		return noDataPrompt
	}
	industry := state.Industry
	if industry == "" {
		industry = "Professional"
	}
	return renderReport(data, industry)
}

// renderReport builds the complete market report: tiered course listings,
// the module inventory, key insights and sources.
func renderReport(data models.ResearchData, industry string) string {
	courses := data.Courses
	var b strings.Builder

	fmt.Fprintf(&b, "# Comprehensive Guide to Online %s Training\n", industry)
	fmt.Fprintf(&b, "\nThe online %s training market offers diverse options from **%d providers** ranging from budget-friendly to premium programs.\n",
		industry, len(courses))
	fmt.Fprintf(&b, "\n---\n\n## Top %d Online %s Courses Ranked by Popularity\n", len(courses), industry)
	b.WriteString("\nBased on enrollment data, reviews, and industry recognition:\n")

	var premium, mid, budget []models.Course
	for _, c := range courses {
		switch courseTier(c) {
		case models.TierMid:
			mid = append(mid, c)
		case models.TierBudget:
			budget = append(budget, c)
		default:
			premium = append(premium, c)
		}
	}

	b.WriteString("\n### Tier 1: Market Leaders (Highest Enrollment/Visibility)\n")
	num := 1
	for _, c := range premium {
		writeCourse(&b, c, num)
		num++
	}
	if len(mid) > 0 {
		b.WriteString("\n---\n\n### Tier 2: Mid-Range Options\n")
		for _, c := range mid {
			writeCourse(&b, c, num)
			num++
		}
	}
	if len(budget) > 0 {
		b.WriteString("\n---\n\n### Tier 3: Budget-Friendly / Free Options\n")
		for _, c := range budget {
			writeCourse(&b, c, num)
			num++
		}
	}

	b.WriteString("\n---\n\n## Complete Module Inventory\n")
	b.WriteString("\nAll unique topics/modules discovered across all courses:\n")
	if len(data.ModuleInventory) > 0 {
		writeInventoryFromStats(&b, data.ModuleInventory)
	} else {
		writeInventoryFromCourses(&b, courses)
	}

	b.WriteString("\n---\n\n## Key Insights\n")

	b.WriteString("\n### Certification Landscape\n")
	certs := uniqueCertifications(courses)
	if len(certs) > 0 {
		if len(certs) > 5 {
			certs = certs[:5]
		}
		fmt.Fprintf(&b, "Available certifications include: %s\n", strings.Join(certs, ", "))
	} else {
		b.WriteString("Various completion certificates and professional certifications available.\n")
	}

	b.WriteString("\n### Pricing Analysis\n")
	b.WriteString("- **Premium tier**: Programs typically $500+ with comprehensive curriculum\n")
	b.WriteString("- **Mid-range**: $100-$500, often subscription-based ($49/month common)\n")
	b.WriteString("- **Budget**: Under $100 or free audit options available\n")

	b.WriteString("\n### Top Platforms\n")
	for _, p := range uniqueProviders(courses, 5) {
		fmt.Fprintf(&b, "- %s\n", p)
	}

	b.WriteString("\n---\n\n## Data Sources\n")
	for _, url := range uniqueCourseURLs(courses, 30) {
		fmt.Fprintf(&b, "- %s\n", url)
	}

	return b.String()
}

func writeCourse(b *strings.Builder, c models.Course, num int) {
	name := c.Name
	if name == "" {
		name = "Unknown Course"
	}
	provider := c.Provider
	if provider == "" {
		provider = "Unknown"
	}
	price := c.Price
	if price == "" {
		price = "Not available"
	}
	duration := c.Duration
	if duration == "" {
		duration = "Not available"
	}
	cert := c.Certification
	if cert == "" {
		cert = "Completion Certificate"
	}

	fmt.Fprintf(b, "\n#### %d. %s\n\n", num, name)
	b.WriteString("| Metric | Details |\n")
	b.WriteString("|--------|---------|\n")
	fmt.Fprintf(b, "| **Provider** | %s |\n", provider)
	fmt.Fprintf(b, "| **Price** | %s |\n", price)
	fmt.Fprintf(b, "| **Duration** | %s |\n", duration)
	fmt.Fprintf(b, "| **Certifications** | %s |\n", cert)
	if c.Students != "" {
		fmt.Fprintf(b, "| **Enrollment** | %s |\n", c.Students)
	}
	if c.Rating != "" {
		fmt.Fprintf(b, "| **Reviews** | %s |\n", c.Rating)
	}
	if c.URL != "" {
		fmt.Fprintf(b, "| **URL** | %s |\n", c.URL)
	}

	if len(c.Curriculum) > 0 {
		fmt.Fprintf(b, "\n**Complete Curriculum (%d Modules):**\n\n", len(c.Curriculum))
		for i, mod := range c.Curriculum {
			if mod.Description != "" {
				fmt.Fprintf(b, "%d. **%s** - %s\n", i+1, mod.Name, mod.Description)
			} else {
				fmt.Fprintf(b, "%d. **%s**\n", i+1, mod.Name)
			}
		}
	} else {
		b.WriteString("\n**Key Modules:** Curriculum details not available from source.\n")
	}
	b.WriteString("\n---\n")
}

// courseTier uses the tier assigned at discovery time when present,
// otherwise classifies from the price string.
func courseTier(c models.Course) string {
	if c.PriceTier != "" {
		return c.PriceTier
	}
	return classifyPriceTier(c.Price)
}

var priceDigits = regexp.MustCompile(`\d+`)

// classifyPriceTier buckets a free-text price. Unknown prices default to
// premium so unpriced flagship programs lead the report rather than trail it.
func classifyPriceTier(price string) string {
	p := strings.ToLower(strings.TrimSpace(price))
	if p == "" || p == "not available" {
		return models.TierPremium
	}
	if strings.Contains(p, "free") || strings.Contains(p, "$0") || strings.Contains(p, "audit") {
		return models.TierBudget
	}
	if max, ok := maxPriceNumber(p); ok {
		switch {
		case max >= 500:
			return models.TierPremium
		case max >= 100:
			return models.TierMid
		default:
			return models.TierBudget
		}
	}
	if strings.Contains(p, "month") {
		return models.TierMid
	}
	return models.TierPremium
}

func maxPriceNumber(price string) (int, bool) {
	nums := priceDigits.FindAllString(strings.ReplaceAll(price, ",", ""), -1)
	if len(nums) == 0 {
		return 0, false
	}
	max := 0
	for _, n := range nums {
		if v, err := strconv.Atoi(n); err == nil && v > max {
			max = v
		}
	}
	return max, true
}

func writeInventoryFromStats(b *strings.Builder, inventory []models.ModuleStat) {
	buckets := map[string][]models.ModuleStat{}
	for _, m := range inventory {
		buckets[m.Importance] = append(buckets[m.Importance], m)
	}

	sections := []struct {
		importance string
		heading    string
		limit      int
	}{
		{models.ImportanceVital, "VITAL (Found in 5+ courses)", 0},
		{models.ImportanceHigh, "HIGH FREQUENCY (Found in 3-4 courses)", 0},
		{models.ImportanceMedium, "MEDIUM FREQUENCY (Found in 2 courses)", 0},
		{models.ImportanceNiche, "NICHE/SPECIALIZED (Found in 1 course)", 20},
	}
	for _, section := range sections {
		modules := buckets[section.importance]
		if len(modules) == 0 {
			continue
		}
		if section.limit > 0 && len(modules) > section.limit {
			modules = modules[:section.limit]
		}
		fmt.Fprintf(b, "\n### %s\n", section.heading)
		for _, m := range modules {
			fmt.Fprintf(b, "- **%s** - Found in %d courses.\n", m.Name, m.Count)
		}
	}
}

// writeInventoryFromCourses computes the inventory on the fly when the
// discovery tool did not precompute one. Module names are matched
// case-insensitively across courses.
func writeInventoryFromCourses(b *strings.Builder, courses []models.Course) {
	type moduleEntry struct {
		name    string
		count   int
		sources []string
	}
	counts := map[string]*moduleEntry{}
	var order []string

	for _, course := range courses {
		courseName := course.Name
		if courseName == "" {
			courseName = "Unknown"
		}
		for _, mod := range course.Curriculum {
			if mod.Name == "" {
				continue
			}
			key := strings.ToLower(strings.TrimSpace(mod.Name))
			entry, ok := counts[key]
			if !ok {
				entry = &moduleEntry{name: mod.Name}
				counts[key] = entry
				order = append(order, key)
			}
			entry.count++
			if !containsString(entry.sources, courseName) {
				entry.sources = append(entry.sources, courseName)
			}
		}
	}

	entries := make([]*moduleEntry, 0, len(order))
	for _, key := range order {
		entries = append(entries, counts[key])
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].count > entries[j].count })

	var vital, high, medium, niche []*moduleEntry
	for _, entry := range entries {
		switch {
		case entry.count >= 5:
			vital = append(vital, entry)
		case entry.count >= 3:
			high = append(high, entry)
		case entry.count == 2:
			medium = append(medium, entry)
		default:
			niche = append(niche, entry)
		}
	}

	writeModuleGroup := func(heading string, group []*moduleEntry, sourceCap, limit int) {
		if len(group) == 0 {
			return
		}
		if limit > 0 && len(group) > limit {
			group = group[:limit]
		}
		fmt.Fprintf(b, "\n### %s\n", heading)
		for _, entry := range group {
			sources := entry.sources
			if len(sources) > sourceCap {
				sources = sources[:sourceCap]
			}
			if entry.count == 1 {
				fmt.Fprintf(b, "- **%s** - (Source: %s)\n", entry.name, sources[0])
			} else {
				fmt.Fprintf(b, "- **%s** - Found in %d courses. (Sources: %s)\n",
					entry.name, entry.count, strings.Join(sources, ", "))
			}
		}
	}

	writeModuleGroup("VITAL (Found in 5+ courses)", vital, 5, 0)
	writeModuleGroup("HIGH FREQUENCY (Found in 3-4 courses)", high, 4, 0)
	writeModuleGroup("MEDIUM FREQUENCY (Found in 2 courses)", medium, 2, 0)
	writeModuleGroup("NICHE/SPECIALIZED (Found in 1 course)", niche, 1, 15)
}

func uniqueCertifications(courses []models.Course) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range courses {
		cert := c.Certification
		if cert == "" || cert == "N/A" || seen[cert] {
			continue
		}
		seen[cert] = true
		out = append(out, cert)
	}
	return out
}

func uniqueProviders(courses []models.Course, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range courses {
		provider := c.Provider
		if provider == "" {
			provider = "Unknown"
		}
		if seen[provider] {
			continue
		}
		seen[provider] = true
		out = append(out, provider)
		if len(out) == limit {
			break
		}
	}
	return out
}

func uniqueCourseURLs(courses []models.Course, limit int) []string {
	seen := map[string]bool{}
	var out []string
	for _, c := range courses {
		if c.URL == "" || seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c.URL)
		if len(out) == limit {
			break
		}
	}
	return out
}

func containsString(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}
