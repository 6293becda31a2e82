package models

// Payload types carried in ToolResult.Data. The reflection merge step
// type-switches on these; an unexpected payload type for a tool is treated
// as an invalid result.

// CourseDiscoveryData is the output of the bulk course discovery tool.
type CourseDiscoveryData struct {
	Courses         []Course            `json:"courses"`
	LessonFrequency []LessonCount       `json:"lesson_frequency,omitempty"`
	ModuleInventory []ModuleStat        `json:"module_inventory,omitempty"`
	Tiers           map[string][]Course `json:"tiers,omitempty"`
	PriceAnalysis   PriceAnalysis       `json:"price_analysis,omitempty"`
	TrendingTopics  []string            `json:"trending_topics,omitempty"`
	SearchedURLs    []string            `json:"searched_urls,omitempty"`
}

// ForumSearchData is the output of the combined forum search tool.
type ForumSearchData struct {
	Reddit          []ForumPost `json:"reddit,omitempty"`
	Quora           []ForumPost `json:"quora,omitempty"`
	CourseReviews   []ForumPost `json:"course_reviews,omitempty"`
	EducationForums []ForumPost `json:"education_forums,omitempty"`
	CourseRankings  []ForumPost `json:"course_rankings,omitempty"`
}

// ContentAnalysisData is the output of the content analysis tool.
type ContentAnalysisData struct {
	AnalysisType     string   `json:"analysis_type"`
	SentimentSummary string   `json:"sentiment_summary,omitempty"`
	TrendingTopics   []string `json:"trending_topics,omitempty"`
	KeyInsights      []string `json:"key_insights,omitempty"`
}
