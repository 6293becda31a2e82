package tools

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/curricula/config"
	"github.com/mohammad-safakhou/curricula/internal/llm"
	"github.com/mohammad-safakhou/curricula/internal/telemetry"
	"github.com/mohammad-safakhou/curricula/internal/tools/scrape"
	"github.com/mohammad-safakhou/curricula/internal/tools/websearch"
	"github.com/mohammad-safakhou/curricula/models"
)

// ProgressFunc receives free-text progress lines while a tool runs. May be
// nil when the caller does not stream progress.
type ProgressFunc func(message string)

// Tool is one idempotent research operation.
type Tool interface {
	Name() string
	Description() string
	// Parameters maps argument names to short usage descriptions, shown to
	// the reasoning model when it selects a tool.
	Parameters() map[string]string
	Execute(ctx context.Context, args map[string]interface{}, progress ProgressFunc) (interface{}, error)
}

// Deps carries the shared collaborators tools are built from.
type Deps struct {
	Searcher  websearch.Searcher
	Scraper   scrape.Scraper
	LLM       *llm.Router
	Search    config.SearchConfig
	Telemetry *telemetry.Telemetry
	Logger    *log.Logger
}

// Registry owns the closed set of tools for a deployment. It is built once
// at startup and shared read-only across sessions.
type Registry struct {
	tools     map[string]Tool
	order     []string
	timeout   time.Duration
	telemetry *telemetry.Telemetry
	logger    *log.Logger
}

// NewRegistry wires every tool with its dependencies.
func NewRegistry(deps Deps, toolTimeout time.Duration) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[TOOL] ", log.LstdFlags)
	}
	deps.Logger = logger
	if toolTimeout <= 0 {
		toolTimeout = 2 * time.Minute
	}

	r := &Registry{
		tools:     make(map[string]Tool),
		timeout:   toolTimeout,
		telemetry: deps.Telemetry,
		logger:    logger,
	}

	r.register(&GoogleSearchTool{deps: deps})
	r.register(&CourseRankingsTool{deps: deps})
	r.register(&CourseDiscoveryTool{deps: deps})
	r.register(&LessonExtractionTool{deps: deps})
	r.register(&WebpageScrapeTool{deps: deps})
	r.register(&RedditSearchTool{deps: deps})
	r.register(&QuoraSearchTool{deps: deps})
	r.register(&AllForumsTool{deps: deps})
	r.register(&PodcastTool{deps: deps})
	r.register(&EducationalPodcastTool{deps: deps})
	r.register(&BlogTool{deps: deps})
	r.register(&ContentAnalysisTool{deps: deps})

	return r
}

func (r *Registry) register(t Tool) {
	r.tools[t.Name()] = t
	r.order = append(r.order, t.Name())
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Descriptions renders the tool catalog for the reasoning prompt.
func (r *Registry) Descriptions() string {
	var b strings.Builder
	for _, name := range r.order {
		t := r.tools[name]
		b.WriteString("- ")
		b.WriteString(t.Name())
		b.WriteString(": ")
		b.WriteString(t.Description())
		b.WriteString("\n")

		params := t.Parameters()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "    %s: %s\n", k, params[k])
		}
	}
	return b.String()
}

// Execute runs the named tool under the registry timeout and wraps the
// outcome as a ToolResult. Failure is captured in the result, never thrown:
// the state machine drives retries off the result, not off panics.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall, progress ProgressFunc) models.ToolResult {
	tool, ok := r.tools[call.Name]
	if !ok {
		return models.ToolResult{ToolName: call.Name, Success: false, Error: fmt.Sprintf("unknown tool: %s", call.Name)}
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	data, err := r.executeSafe(ctx, tool, call.Arguments, progress)
	duration := time.Since(start)

	result := models.ToolResult{ToolName: call.Name, Success: err == nil, Data: data}
	if err != nil {
		result.Error = err.Error()
		result.Data = nil
		r.logger.Printf("tool %s failed after %v: %v", call.Name, duration, err)
	} else {
		r.logger.Printf("tool %s completed in %v", call.Name, duration)
	}

	if r.telemetry != nil {
		r.telemetry.RecordTool(telemetry.ToolEvent{
			Tool:     call.Name,
			Duration: duration,
			Success:  err == nil,
			Error:    result.Error,
			Results:  countItems(data),
		})
	}
	return result
}

func (r *Registry) executeSafe(ctx context.Context, tool Tool, args map[string]interface{}, progress ProgressFunc) (data interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			data = nil
			err = fmt.Errorf("tool %s panicked: %v", tool.Name(), rec)
		}
	}()
	return tool.Execute(ctx, args, progress)
}

func countItems(data interface{}) int {
	switch v := data.(type) {
	case []models.SearchResult:
		return len(v)
	case []models.Course:
		return len(v)
	case []models.ForumPost:
		return len(v)
	case []models.Podcast:
		return len(v)
	case []models.Blog:
		return len(v)
	case models.CourseDiscoveryData:
		return len(v.Courses)
	case models.ForumSearchData:
		return len(v.Reddit) + len(v.Quora) + len(v.CourseReviews) + len(v.EducationForums) + len(v.CourseRankings)
	case models.Curriculum:
		return len(v.Modules)
	case models.ContentAnalysisData:
		return len(v.TrendingTopics) + len(v.KeyInsights)
	default:
		return 0
	}
}

// Argument helpers shared by tools. Arguments come from LLM JSON, so every
// access tolerates missing keys and json.Number style values.

func stringArg(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func intArg(args map[string]interface{}, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	}
	return nil
}
