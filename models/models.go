package models

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in a session transcript. Messages are append-only and
// never reordered.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ToolCall names a tool and its arguments, chosen by the reasoning step.
type ToolCall struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult is the literal outcome of invoking a tool. Data is one of the
// payload types below; a failed call carries Error and nil Data.
type ToolResult struct {
	ToolName string      `json:"tool_name"`
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// SearchResult is one organic web search hit.
type SearchResult struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position,omitempty"`
}

// Competitor is a provider discovered through generic search.
type Competitor struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Module is a single lesson or unit inside a course curriculum.
type Module struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Course is one discovered course offering.
type Course struct {
	Name          string   `json:"name"`
	Provider      string   `json:"provider"`
	URL           string   `json:"url"`
	Price         string   `json:"price,omitempty"`
	PriceTier     string   `json:"price_tier,omitempty"`
	Duration      string   `json:"duration,omitempty"`
	Certification string   `json:"certification,omitempty"`
	Rating        string   `json:"rating,omitempty"`
	Students      string   `json:"students,omitempty"`
	Curriculum    []Module `json:"curriculum,omitempty"`
}

// Price tiers used across discovery and reporting.
const (
	TierPremium = "premium"
	TierMid     = "mid"
	TierBudget  = "budget"
)

// Curriculum is a full course outline extracted from one page.
type Curriculum struct {
	CourseName string   `json:"course_name"`
	URL        string   `json:"url"`
	Provider   string   `json:"provider,omitempty"`
	Modules    []Module `json:"modules"`
}

// LessonCount tracks how often a module topic appears across courses.
type LessonCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ModuleStat is one inventory row: a module topic, its frequency and the
// importance bucket derived from it.
type ModuleStat struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Importance string `json:"importance"`
}

// Importance buckets for the module inventory.
const (
	ImportanceVital  = "vital"
	ImportanceHigh   = "high"
	ImportanceMedium = "medium"
	ImportanceNiche  = "niche"
)

// ForumPost is a community discussion hit (reddit, quora or other forums).
// For quora items Title holds the question.
type ForumPost struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source"`
}

// Podcast is one podcast show or episode relevant to the topic.
type Podcast struct {
	Name        string `json:"name"`
	Publisher   string `json:"publisher,omitempty"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source"`
}

// Blog is one blog or article source.
type Blog struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Domain  string `json:"domain,omitempty"`
}

// PriceAnalysis summarizes the pricing landscape of discovered courses.
// Scalar in the accumulator: replaced wholesale on each discovery merge.
type PriceAnalysis struct {
	PremiumCount int     `json:"premium_count"`
	MidCount     int     `json:"mid_count"`
	BudgetCount  int     `json:"budget_count"`
	MinPrice     float64 `json:"min_price,omitempty"`
	MaxPrice     float64 `json:"max_price,omitempty"`
	Summary      string  `json:"summary,omitempty"`
}

// Empty reports whether no pricing data has been collected.
func (p PriceAnalysis) Empty() bool {
	return p.PremiumCount == 0 && p.MidCount == 0 && p.BudgetCount == 0 && p.Summary == ""
}

// ResearchData accumulates all findings for one session. Categories only grow
// within a session; sentiment_summary and price_analysis are last-write-wins
// scalars.
type ResearchData struct {
	Competitors      []Competitor  `json:"competitors,omitempty"`
	Curricula        []Curriculum  `json:"curricula,omitempty"`
	Courses          []Course      `json:"courses,omitempty"`
	LessonFrequency  []LessonCount `json:"lesson_frequency,omitempty"`
	ModuleInventory  []ModuleStat  `json:"module_inventory,omitempty"`
	RedditPosts      []ForumPost   `json:"reddit_posts,omitempty"`
	QuoraAnswers     []ForumPost   `json:"quora_answers,omitempty"`
	Podcasts         []Podcast     `json:"podcasts,omitempty"`
	Blogs            []Blog        `json:"blogs,omitempty"`
	TrendingTopics   []string      `json:"trending_topics,omitempty"`
	SentimentSummary string        `json:"sentiment_summary,omitempty"`
	PriceAnalysis    PriceAnalysis `json:"price_analysis,omitempty"`
}

// PrimaryCount returns the size of the primary category (courses).
func (r ResearchData) PrimaryCount() int { return len(r.Courses) }

// TotalItems returns the total number of accumulated items across categories.
func (r ResearchData) TotalItems() int {
	n := len(r.Competitors) + len(r.Curricula) + len(r.Courses) +
		len(r.RedditPosts) + len(r.QuoraAnswers) + len(r.Podcasts) +
		len(r.Blogs) + len(r.TrendingTopics)
	if r.SentimentSummary != "" {
		n++
	}
	return n
}

// CategoryCounts returns per-category item counts, used for summaries and
// monotonicity checks.
func (r ResearchData) CategoryCounts() map[string]int {
	return map[string]int{
		"competitors":      len(r.Competitors),
		"curricula":        len(r.Curricula),
		"courses":          len(r.Courses),
		"lesson_frequency": len(r.LessonFrequency),
		"module_inventory": len(r.ModuleInventory),
		"reddit_posts":     len(r.RedditPosts),
		"quora_answers":    len(r.QuoraAnswers),
		"podcasts":         len(r.Podcasts),
		"blogs":            len(r.Blogs),
		"trending_topics":  len(r.TrendingTopics),
	}
}

// PlanCompetitor is a provider proposed in a research plan.
type PlanCompetitor struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
	Type string `json:"type,omitempty"`
}

// Competitor provider types, ordered by research priority.
const (
	ProviderIndustrySpecialist = "industry_specialist"
	ProviderCertificationBody  = "certification_body"
	ProviderTradeSchool        = "trade_school"
	ProviderBootcamp           = "bootcamp"
	ProviderMOOC               = "mooc"
)

// PlanCertification is a certification proposed in a research plan.
type PlanCertification struct {
	Name       string `json:"name"`
	Importance string `json:"importance,omitempty"`
}

// Certification importance levels.
const (
	CertRequired          = "required"
	CertHighlyRecommended = "highly_recommended"
	CertOptional          = "optional"
)

// ResearchPlan is the discovered-and-approved scope guiding tool calls.
// Selected subsets start as copies of the discovered sets and are edited
// through user feedback until the plan is confirmed.
type ResearchPlan struct {
	Industry               string              `json:"industry"`
	Competitors            []PlanCompetitor    `json:"competitors"`
	Certifications         []PlanCertification `json:"certifications"`
	Audiences              []string            `json:"audiences"`
	SelectedCompetitors    []string            `json:"selected_competitors"`
	SelectedCertifications []string            `json:"selected_certifications"`
	SelectedAudiences      []string            `json:"selected_audiences"`
	IsConfirmed            bool                `json:"is_confirmed"`
}

// ClarificationStage tracks progress of the plan approval loop.
type ClarificationStage string

const (
	StageDiscovery      ClarificationStage = "discovery"
	StagePresentingPlan ClarificationStage = "presenting_plan"
	StageRefining       ClarificationStage = "refining"
	StageConfirmed      ClarificationStage = "confirmed"
)

// ClarificationState tracks the plan approval conversation.
type ClarificationState struct {
	Stage        ClarificationStage `json:"stage"`
	Iteration    int                `json:"iteration"`
	UserFeedback []string           `json:"user_feedback,omitempty"`
	IsComplete   bool               `json:"is_complete"`
}

// ConversationState is everything the agent knows about one session. It is
// loaded before a turn, mutated by exactly one turn at a time and saved after.
type ConversationState struct {
	SessionID     string             `json:"session_id"`
	Messages      []Message          `json:"messages"`
	Industry      string             `json:"industry,omitempty"`
	ResearchPlan  *ResearchPlan      `json:"research_plan,omitempty"`
	Clarification ClarificationState `json:"clarification"`
	ResearchData  ResearchData       `json:"research_data"`

	ToolCallCount int `json:"tool_call_count"`
	RetryCount    int `json:"retry_count"`

	// Transient within one state machine pass.
	CurrentToolCall   *ToolCall   `json:"-"`
	CurrentToolResult *ToolResult `json:"-"`

	ReasoningExplanation  string `json:"-"`
	ReflectionExplanation string `json:"-"`
	IsClarifyingQuestion  bool   `json:"-"`
	PendingResponse       string `json:"-"`

	AwaitingClarification bool `json:"awaiting_clarification"`
}

// LastUserMessage returns the content of the most recent user message.
func (s *ConversationState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i].Content
		}
	}
	return ""
}

// ResetForNewTopic discards plan and clarification progress while keeping the
// message transcript. Called when a brand-new topic is detected mid-session.
func (s *ConversationState) ResetForNewTopic(topic string) {
	s.Industry = topic
	s.ResearchPlan = nil
	s.Clarification = ClarificationState{Stage: StageDiscovery}
	s.ResearchData = ResearchData{}
	s.ToolCallCount = 0
	s.RetryCount = 0
	s.CurrentToolCall = nil
	s.CurrentToolResult = nil
	s.AwaitingClarification = false
}

// ResearchPhase identifies one phase of the guided deep-research pipeline.
type ResearchPhase string

const (
	PhaseInitial       ResearchPhase = "initial"
	PhaseClarification ResearchPhase = "clarification"
	PhaseCompetitive   ResearchPhase = "competitive"
	PhaseExpertise     ResearchPhase = "expertise"
	PhaseSentiment     ResearchPhase = "sentiment"
	PhaseSynthesis     ResearchPhase = "synthesis"
	PhaseComplete      ResearchPhase = "complete"
)

// NextPhase returns the phase that follows p in the fixed pipeline.
func NextPhase(p ResearchPhase) ResearchPhase {
	switch p {
	case PhaseInitial:
		return PhaseClarification
	case PhaseClarification:
		return PhaseCompetitive
	case PhaseCompetitive:
		return PhaseExpertise
	case PhaseExpertise:
		return PhaseSentiment
	case PhaseSentiment:
		return PhaseSynthesis
	case PhaseSynthesis:
		return PhaseComplete
	default:
		return PhaseComplete
	}
}

// ResearchState is the serializable state of the multi-phase orchestrator.
// History records the phases the user has signed off on, in order.
type ResearchState struct {
	Topic            string                   `json:"topic"`
	Phase            ResearchPhase            `json:"phase"`
	Clarifications   []string                 `json:"clarifications,omitempty"`
	Findings         map[ResearchPhase]string `json:"findings,omitempty"`
	History          []string                 `json:"history,omitempty"`
	AwaitingFeedback bool                     `json:"awaiting_feedback"`
	TotalSearches    int                      `json:"total_searches"`
}
