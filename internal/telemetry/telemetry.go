package telemetry

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohammad-safakhou/curricula/config"
)

// Telemetry tracks turn outcomes, tool executions and LLM spend. Counters are
// exported to prometheus; dollar accounting stays in memory so the final
// report can be printed on shutdown.
type Telemetry struct {
	config      config.TelemetryConfig
	logger      *log.Logger
	costTracker *CostTracker
	mu          sync.RWMutex

	turnsTotal    *prometheus.CounterVec
	turnDuration  prometheus.Histogram
	toolsTotal    *prometheus.CounterVec
	toolDuration  *prometheus.HistogramVec
	llmRequests   *prometheus.CounterVec
	llmTokens     *prometheus.CounterVec
	phasesTotal   *prometheus.CounterVec
	streamEvents  *prometheus.CounterVec
	activeStreams prometheus.Gauge
}

// CostTracker accumulates LLM costs per model and per operation.
type CostTracker struct {
	mu sync.RWMutex

	ModelCosts     map[string]float64
	OperationCosts map[string]float64

	TotalCost   float64
	TotalTokens int64
}

// TurnEvent represents one completed conversation turn.
type TurnEvent struct {
	SessionID  string
	Node       string // node that produced the final response
	Duration   time.Duration
	Success    bool
	Error      string
	ToolCalls  int
	Retries    int
	Cost       float64
	TokensUsed int64
}

// ToolEvent represents a single tool execution.
type ToolEvent struct {
	SessionID string
	Tool      string
	Duration  time.Duration
	Success   bool
	Error     string
	Results   int
}

// LLMEvent represents one LLM API call.
type LLMEvent struct {
	Model        string
	Operation    string // reasoning, reflection, extraction, research
	Duration     time.Duration
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Success      bool
}

// New creates a telemetry instance and registers its collectors with the
// default prometheus registry.
func New(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		costTracker: &CostTracker{
			ModelCosts:     make(map[string]float64),
			OperationCosts: make(map[string]float64),
		},
		turnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curricula_turns_total",
			Help: "Conversation turns processed, by terminal node and outcome.",
		}, []string{"node", "outcome"}),
		turnDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "curricula_turn_duration_seconds",
			Help:    "Wall time of a full conversation turn.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		}),
		toolsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curricula_tool_executions_total",
			Help: "Tool executions, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		toolDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curricula_tool_duration_seconds",
			Help:    "Tool execution duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
		llmRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curricula_llm_requests_total",
			Help: "LLM API calls, by model and operation.",
		}, []string{"model", "operation"}),
		llmTokens: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curricula_llm_tokens_total",
			Help: "Tokens consumed, by model and direction.",
		}, []string{"model", "direction"}),
		phasesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curricula_research_phases_total",
			Help: "Deep research phases completed, by phase and outcome.",
		}, []string{"phase", "outcome"}),
		streamEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curricula_stream_events_total",
			Help: "Events emitted to SSE streams, by kind.",
		}, []string{"kind"}),
		activeStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "curricula_active_streams",
			Help: "SSE streams currently open.",
		}),
	}
	return t
}

// RecordTurn records a completed conversation turn.
func (t *Telemetry) RecordTurn(event TurnEvent) {
	if !t.config.Enabled {
		return
	}

	outcome := "success"
	if !event.Success {
		outcome = "error"
	}
	node := event.Node
	if node == "" {
		node = "turn"
	}
	t.turnsTotal.WithLabelValues(node, outcome).Inc()
	t.turnDuration.Observe(event.Duration.Seconds())

	t.costTracker.mu.Lock()
	t.costTracker.TotalCost += event.Cost
	t.costTracker.TotalTokens += event.TokensUsed
	t.costTracker.mu.Unlock()

	t.logger.Printf("Turn: session=%s node=%s success=%t duration=%v tools=%d retries=%d cost=$%.4f",
		event.SessionID, node, event.Success,
		event.Duration, event.ToolCalls, event.Retries, event.Cost)
}

// RecordTool records a tool execution.
func (t *Telemetry) RecordTool(event ToolEvent) {
	if !t.config.Enabled {
		return
	}

	outcome := "success"
	if !event.Success {
		outcome = "error"
	}
	t.toolsTotal.WithLabelValues(event.Tool, outcome).Inc()
	t.toolDuration.WithLabelValues(event.Tool).Observe(event.Duration.Seconds())

	t.logger.Printf("Tool: tool=%s success=%t duration=%v results=%d",
		event.Tool, event.Success, event.Duration, event.Results)
}

// RecordLLM records an LLM API call.
func (t *Telemetry) RecordLLM(event LLMEvent) {
	if !t.config.Enabled {
		return
	}

	t.llmRequests.WithLabelValues(event.Model, event.Operation).Inc()
	t.llmTokens.WithLabelValues(event.Model, "input").Add(float64(event.InputTokens))
	t.llmTokens.WithLabelValues(event.Model, "output").Add(float64(event.OutputTokens))

	if t.config.CostTracking {
		t.costTracker.mu.Lock()
		t.costTracker.TotalCost += event.Cost
		t.costTracker.TotalTokens += event.InputTokens + event.OutputTokens
		t.costTracker.ModelCosts[event.Model] += event.Cost
		t.costTracker.OperationCosts[event.Operation] += event.Cost
		t.costTracker.mu.Unlock()
	}
}

// RecordPhase records a deep research phase completion.
func (t *Telemetry) RecordPhase(phase string, success bool) {
	if !t.config.Enabled {
		return
	}
	outcome := "success"
	if !success {
		outcome = "error"
	}
	t.phasesTotal.WithLabelValues(phase, outcome).Inc()
}

// RecordStreamEvent counts an event pushed to an SSE stream.
func (t *Telemetry) RecordStreamEvent(kind string) {
	if !t.config.Enabled {
		return
	}
	t.streamEvents.WithLabelValues(kind).Inc()
}

// StreamOpened marks an SSE stream as open.
func (t *Telemetry) StreamOpened() { t.activeStreams.Inc() }

// StreamClosed marks an SSE stream as closed.
func (t *Telemetry) StreamClosed() { t.activeStreams.Dec() }

// CalculateCost converts a token count into dollars for a model.
func (t *Telemetry) CalculateCost(inputTokens, outputTokens int64, costPer1KInput, costPer1KOutput float64) float64 {
	inputCost := float64(inputTokens) / 1000.0 * costPer1KInput
	outputCost := float64(outputTokens) / 1000.0 * costPer1KOutput
	return inputCost + outputCost
}

// CostSummary provides a snapshot of accumulated costs.
type CostSummary struct {
	TotalCost      float64
	TotalTokens    int64
	ModelCosts     map[string]float64
	OperationCosts map[string]float64
}

// GetCostSummary returns the current cost summary.
func (t *Telemetry) GetCostSummary() CostSummary {
	t.costTracker.mu.RLock()
	defer t.costTracker.mu.RUnlock()

	summary := CostSummary{
		TotalCost:      t.costTracker.TotalCost,
		TotalTokens:    t.costTracker.TotalTokens,
		ModelCosts:     make(map[string]float64),
		OperationCosts: make(map[string]float64),
	}
	for k, v := range t.costTracker.ModelCosts {
		summary.ModelCosts[k] = v
	}
	for k, v := range t.costTracker.OperationCosts {
		summary.OperationCosts[k] = v
	}
	return summary
}

// Shutdown logs a final cost report.
func (t *Telemetry) Shutdown() {
	costs := t.GetCostSummary()
	t.logger.Printf("Final Report: TotalCost=$%.4f TotalTokens=%d", costs.TotalCost, costs.TotalTokens)
	for model, cost := range costs.ModelCosts {
		t.logger.Printf("  Model %s: $%.4f", model, cost)
	}
	for op, cost := range costs.OperationCosts {
		t.logger.Printf("  Operation %s: $%.4f", op, cost)
	}
}

// GetPerformanceReport returns a human-readable cost report.
func (t *Telemetry) GetPerformanceReport() string {
	costs := t.GetCostSummary()

	report := fmt.Sprintf("=== COST REPORT ===\nTotal Cost: $%.4f\nTotal Tokens: %d\n\nBy Model:\n",
		costs.TotalCost, costs.TotalTokens)
	for model, cost := range costs.ModelCosts {
		report += fmt.Sprintf("  %s: $%.4f\n", model, cost)
	}
	report += "\nBy Operation:\n"
	for op, cost := range costs.OperationCosts {
		report += fmt.Sprintf("  %s: $%.4f\n", op, cost)
	}
	return report
}
