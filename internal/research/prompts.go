package research

import (
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/curricula/models"
)

// Synthesis keeps the composed prompt inside the model's context window by
// capping how much of each phase's findings it quotes.
const (
	synthesisCompetitiveCap = 12000
	synthesisExpertiseCap   = 8000
	synthesisSentimentCap   = 8000
	refineContextCap        = 3000
)

const broadPassSuffix = `

IMPORTANT: Conduct a COMPREHENSIVE search. Do NOT stop after just a few searches.
Search broadly to find ALL relevant information. Use many different search queries
to cover different aspects, providers, sources, and perspectives.

Be thorough - this is deep research, not a quick lookup.`

// gapFillPrompt wraps the phase prompt for a follow-up pass: the last two
// findings blocks plus instructions to fill gaps instead of repeating.
func gapFillPrompt(prompt string, previous []string) string {
	if len(previous) > 2 {
		previous = previous[len(previous)-2:]
	}
	return fmt.Sprintf(`%s

PREVIOUS RESEARCH FINDINGS:
%s

NEXT STEPS:
1. Review what we've found so far
2. Identify GAPS or areas needing more detail
3. Search for specific information we're missing
4. Find additional sources we haven't covered
5. Verify key claims with additional searches

Do NOT repeat information already found. Focus on NEW details and filling gaps.
Continue until you have comprehensive coverage.`, prompt, strings.Join(previous, "\n---\n"))
}

const clarifySystem = "You are a helpful curriculum development assistant. Ask brief, natural clarifying questions."

func clarifyPrompt(topic string) string {
	return fmt.Sprintf(`The user wants to create a curriculum for: %s

Ask 2-4 brief, natural clarifying questions to understand their needs better. Be conversational like a helpful colleague would ask.

Consider asking about:
- Target audience (beginners vs experienced)
- Geographic focus (for certifications/regulations)
- Specific focus areas (residential, commercial, specialized)
- Program duration preferences

Keep it brief and friendly. Don't be overly formal.`, topic)
}

const competitiveSystem = `You are a professional curriculum market researcher. Your task is to find and document ALL available online courses comprehensively.

CRITICAL REQUIREMENTS:
1. Find AT LEAST 20-30 courses - search multiple platforms thoroughly
2. For EACH course, list the COMPLETE curriculum - every single lesson
3. Each lesson needs 2-3 sentence description of what students learn
4. Include real pricing, reviews, ratings, and enrollment data
5. Rank courses by popularity using Google reviews, ratings, enrollment numbers
6. After listing all courses, create the summary tables showing:
   - Top 20 courses ranked by popularity
   - ALL lessons ranked by frequency across courses
   - Price analysis by tier

DO NOT truncate lesson lists. DO NOT stop at 10 courses. Be EXHAUSTIVE.

Output format: Use clean markdown tables for metrics, numbered lists for lessons.`

func competitivePrompt(topic, context string) string {
	return fmt.Sprintf(`# COMPETITIVE MARKET RESEARCH: %s

User Context: %s

## YOUR TASK:

Assemble a COMPREHENSIVE list of ALL online courses or online schools that teach courses or materials relevant to %s.

## FOR EACH COURSE, CAPTURE:

1. URL/Link - direct link to the course page
2. Pricing - exact cost, payment plans if available
3. Length of course - duration in hours/weeks/months
4. Certifications - what credentials you get upon completion
5. Comprehensive lesson list - ALL lessons taught with 2-3 sentence descriptions

## RANKING REQUIREMENTS:

Rank all courses by POPULARITY: total Google reviews, SEO visibility, enrollment
numbers where available, industry recognition and accreditations. Use Google
Trends, platform review counts (Udemy, Coursera ratings), BBB accreditation
status, and Indeed/Glassdoor reviews for career schools.

## SOURCES TO SEARCH (be exhaustive):

1. Major learning platforms: Udemy, Coursera, LinkedIn Learning, edX, Skillshare, Pluralsight
2. Career/vocational schools: Penn Foster, U.S. Career Institute, Ashworth College, CareerStep
3. Community colleges: online programs via ed2go, distance learning
4. Industry-specific training: professional associations, certification bodies, manufacturer training
5. Mobile/app platforms: SkillCat, apps specific to the industry
6. YouTube/free resources: structured free courses with curriculum

## OUTPUT FORMAT:

For each course, a markdown table with Provider, URL, Price, Duration,
Certifications and Popularity Metrics rows, followed by the complete numbered
lesson list with 2-3 sentence descriptions per lesson.

## MINIMUM REQUIREMENTS:

YOU MUST FIND AND DOCUMENT AT LEAST 20-30 COURSES. If there are 20+ courses
available, list the TOP 20 ranked by popularity; if fewer exist, list ALL of
them. Complete lesson lists, never truncated.

## FINAL SUMMARY (after listing all courses):

1. Top 20 Courses Ranked by Popularity: | Rank | Course Name | Provider | URL | Price | Reviews/Rating |
2. Exhaustive Lesson Inventory ranked by how frequently each lesson appears across courses: | Rank | Lesson Topic | Appears In | Frequency |
3. Price Analysis: | Tier | Price Range | Example Courses | for budget, mid-range and premium tiers.

Now begin searching and documenting courses:`, topic, context, topic)
}

const expertiseSystem = `You are an industry research expert compiling media sources and extracting curriculum-relevant trends.

CRITICAL REQUIREMENTS:
1. Find and rank AT LEAST 10 sources in EACH category (podcasts, blogs, publications)
2. For the TOP 5 in each category, research their content from the last 3 years
3. Extract ALL new technologies, developments, innovations mentioned
4. Convert findings into AT LEAST 20+ potential lessons
5. Each lesson must have:
   - 3 sentence description of what to teach
   - Source citation (specific podcast/blog/publication)
   - Reasoning for curriculum inclusion
   - Employment relevance explanation

Focus on what EMPLOYERS in this industry care about. The goal is to identify what makes graduates employable.`

func expertisePrompt(topic, context string) string {
	return fmt.Sprintf(`# RECENT INDUSTRY EXPERTISE RESEARCH: %s

User Context: %s

## STEP 1: Compile an EXHAUSTIVE list of the most popular industry media

Find and rank by audience size or how often they are cited as industry-leading:

A. PODCASTS (find 10+, rank top 5): | Rank | Podcast Name | Host | URL | Listener Count/Reviews | Episodes |
   Focus on podcasts that prospective EMPLOYERS in this industry listen to.
B. BLOGS (find 10+, rank top 5): | Rank | Blog/Website | URL | Author/Organization | Monthly Readers/DA | Update Frequency |
C. TRADE PUBLICATIONS (find 10+, rank top 5): | Rank | Publication | URL | Publisher | Circulation/Citations | Frequency |

## STEP 2: Extract Recent Developments (last 3 years)

For the TOP 5 in EACH subcategory, go through their recent content and extract
new technologies, new information, innovations, regulatory changes and
industry shifts.

## STEP 3: Convert to Potential Lessons (AT LEAST 20+)

Rank each topic by how relevant it is to getting employed and how often it
comes up across sources. For each lesson output:

- Lesson title
- What to Teach (3 sentences: skills, knowledge, practical applications)
- Frequency across sources (High/Medium/Low with count)
- Source (which podcast/blog/publication, with specific episode/article when possible)
- Why Include in Curriculum (employment relevance)

## MINIMUM REQUIREMENTS:

YOU MUST PRODUCE AT LEAST 20+ LESSON RECOMMENDATIONS, each with description,
source citation, reasoning and relevance ranking.

Now search for industry podcasts, blogs, and publications, then extract recent trends:`, topic, context)
}

const sentimentSystem = `You are a community research expert analyzing online discussions to identify curriculum needs.

CRITICAL REQUIREMENTS:
1. Search Reddit, Quora, and industry-specific forums thoroughly
2. Find AT LEAST 30 distinct topics/questions being discussed
3. For EACH topic provide:
   - 3 sentence description of what must be taught
   - Specific popularity metric (upvotes, comments, engagement)
   - Platform and source citation
4. Rank ALL topics by popularity using consistent metrics
5. Identify the communities found with member counts
6. Include actual post titles or questions as examples

The goal is to understand what REAL people struggle with and want to learn.`

func sentimentPrompt(topic, context string) string {
	return fmt.Sprintf(`# CONSUMER SENTIMENT RESEARCH: %s

User Context: %s

## YOUR TASK:

For any online community tied to %s, compile a COMPREHENSIVE list of:

1. Most popular posts - highest upvoted/engaged discussions
2. Most frequently asked questions - what beginners always ask
3. Topics people LOVE discussing - what generates the most engagement
4. Topics people feel FRUSTRATED not understanding - pain points and struggles
5. Most recent conversation topics - new developments being discussed

## PLATFORMS TO SEARCH:

Reddit (all relevant subreddits), Quora (career and how-to questions),
industry-specific forums, Stack Exchange where applicable, Facebook groups,
LinkedIn discussions, Discord servers for professional communities.

## OUTPUT FORMAT:

PART 1 - Communities found: | Platform | Community Name | Members/Size | Activity Level | Focus Area |
PART 2 - For each topic: title, 3 sentence description of what must be taught,
popularity metric with real numbers, platform(s) found on, sample post/question
titles, and the curriculum implication.
PART 3 - Ranking: | Rank | Topic | Popularity Score | Platform(s) | Urgency |

## CATEGORIES TO IDENTIFY:

Technical skills people ask about most, common beginner struggles, career
questions, tools and equipment confusion, industry changes under discussion,
and frustrations.

## MINIMUM REQUIREMENTS:

YOU MUST FIND AT LEAST 30+ DISTINCT TOPICS/QUESTIONS, each with description,
specific popularity metric, source citation and engagement ranking. Use a
CONSISTENT popularity metric across platforms to enable fair ranking.

Now search the online communities and compile findings:`, topic, context, topic)
}

const synthesisSystem = `You are a master curriculum architect creating the definitive module inventory.

CRITICAL INSTRUCTIONS:
1. Synthesize ALL modules from the three research phases into one organized inventory
2. Use the EXACT table format provided with columns: #, Module Title, Description, Priority, Source
3. Each description must be 3-4 sentences explaining content, skills, and outcomes
4. Assign priority based on how often the topic appeared across sources
5. Include source indicators showing where each module was identified
6. Organize into logical sections (A-G as shown)
7. Target 150-250+ total modules - be comprehensive
8. Deduplicate similar modules but note all sources that identified them

This is the final deliverable - make it comprehensive and professional.`

func synthesisPrompt(topic, competitive, expertise, sentiment string) string {
	return fmt.Sprintf(`# %s Master Curriculum Module Inventory

## Document Purpose

This master inventory consolidates all modules identified through three research exercises:

1. Competitive Analysis: modules from competitor curriculum analysis
2. Industry Media Analysis: top podcasts, blogs, and trade publications
3. Community Research: Reddit, industry forums, Quora

---

## RESEARCH DATA:

### From Competitive Research:
%s

### From Industry Expertise Research:
%s

### From Consumer Sentiment Research:
%s

---

# CREATE THE MASTER MODULE INVENTORY

Organize modules into sections A through G (core technical; electrical and
controls; systems and installation; troubleshooting and diagnostics; safety
and compliance; professional and career; emerging technology — rename sections
to fit this industry). Within each section use numbered subsections and this
exact table:

| # | Module Title | Description | Priority | Source |

Module numbering A1-01, A1-02, ... Each description is 3-4 sentences covering
content, skills and outcomes. Priority is Critical, High or Standard:

| Priority | Criteria |
|----------|----------|
| Critical | Appears in 70%%+ of competitor programs OR top community score OR legally required |
| High     | Appears in 40-70%% of programs OR strong industry/community signal |
| Standard | Appears in 20-40%% of programs OR moderate signal |

Close with CURRICULUM STATISTICS: total unique modules, counts per priority,
and counts per research source.

## REQUIREMENTS:
1. Include ALL modules from ALL three research phases
2. Deduplicate similar modules and note which sources identified them
3. Priority based on frequency across sources
4. Target: 150-250+ unique modules total

Now synthesize all research into the master inventory:`, topic,
		orFallback(clip(competitive, synthesisCompetitiveCap)),
		orFallback(clip(expertise, synthesisExpertiseCap)),
		orFallback(clip(sentiment, synthesisSentimentCap)))
}

const refineSystem = "You are refining curriculum research based on user feedback. Address their specific requests and use clean markdown tables."

func refinePrompt(phase models.ResearchPhase, topic, feedback, context string) string {
	if context == "" {
		context = "Starting fresh"
	}
	return fmt.Sprintf(`# Refine %s Research: %s

User Feedback: %s

Current Findings Summary:
%s

Based on the user's feedback, provide additional research or modifications.
Use clean markdown tables for any new information.
Address the user's specific requests directly.`, titlePhase(phase), topic, feedback, context)
}

// Feedback prompts shown when a phase lands and the pipeline pauses for the
// user's verdict.
const (
	competitiveFeedbackRequest = `**Phase 1 Complete: Competitive Research**

Review the courses and lessons above. You can:
- Ask me to dig deeper into specific courses
- Add courses you know about that I missed
- Tell me to continue to Phase 2 (Industry Expertise research)

Just respond naturally - what would you like to do?`

	expertiseFeedbackRequest = `**Phase 2 Complete: Industry Expertise**

Review the podcasts, blogs, and emerging topics above. You can:
- Ask me to explore specific trends deeper
- Add sources you know about
- Tell me to continue to Phase 3 (Consumer Sentiment research)

What would you like to do?`

	sentimentFeedbackRequest = `**Phase 3 Complete: Consumer Sentiment**

Review the community insights above. You can:
- Ask me to explore specific topics deeper
- Add communities I should check
- Tell me to generate the **Final Curriculum Synthesis**

What would you like to do?`

	completionMessage = `**Curriculum Research Complete!**

Your comprehensive curriculum has been generated above. You can:
- Download the report
- Ask me to modify specific modules
- Start a new research topic

The curriculum includes lessons from competitive analysis, industry trends, and community insights.`
)

func refineFeedbackRequest(phase models.ResearchPhase) string {
	return fmt.Sprintf(`I've updated the %s research based on your feedback.

Would you like to:
- Make more changes to this phase
- Continue to the next phase

Just let me know!`, phase)
}

// baseContinueSignals advance any paused phase; phaseContinueSignals add the
// per-phase aliases users actually type.
var baseContinueSignals = []string{
	"continue", "next", "proceed", "looks good", "move on",
	"go ahead", "ok", "okay", "yes", "good", "great", "perfect",
}

var phaseContinueSignals = map[models.ResearchPhase][]string{
	models.PhaseCompetitive: {"phase 2", "expertise"},
	models.PhaseExpertise:   {"phase 3", "sentiment"},
	models.PhaseSentiment:   {"final", "synthesis", "generate"},
}

// wantsContinue reports whether message is a continue-signal for the phase.
// Matching is substring over the lowercased message, same as the feedback
// handlers have always treated it.
func wantsContinue(phase models.ResearchPhase, message string) bool {
	lower := strings.ToLower(strings.TrimSpace(message))
	for _, signal := range baseContinueSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	for _, signal := range phaseContinueSignals[phase] {
		if strings.Contains(lower, signal) {
			return true
		}
	}
	return false
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func orFallback(s string) string {
	if s == "" {
		return "Not available"
	}
	return s
}

func titlePhase(phase models.ResearchPhase) string {
	s := string(phase)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
