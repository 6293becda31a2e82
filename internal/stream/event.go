package stream

import "fmt"

// Kind identifies the UI-facing category of a stream event. The set is
// closed: handlers switch on it and clients key their rendering off it.
type Kind string

const (
	KindSession          Kind = "session"
	KindStatus           Kind = "status"
	KindThinking         Kind = "thinking"
	KindText             Kind = "text"
	KindSearch           Kind = "search"
	KindSearchComplete   Kind = "search_complete"
	KindPhaseStart       Kind = "phase_start"
	KindPhaseComplete    Kind = "phase_complete"
	KindClarification    Kind = "clarification"
	KindFeedbackRequest  Kind = "feedback_request"
	KindResearchComplete Kind = "research_complete"
	KindComplete         Kind = "complete"
	KindRefinement       Kind = "refinement"
	KindNavigation       Kind = "navigation"
	KindFollowup         Kind = "followup"
	KindError            Kind = "error"
	KindPing             Kind = "ping"
	KindDone             Kind = "done"
)

// Event is one frame of a chat turn's output stream. Kind discriminates
// which of the optional fields are meaningful.
type Event struct {
	Kind        Kind   `json:"type"`
	SessionID   string `json:"session_id,omitempty"`
	Content     string `json:"content,omitempty"`
	Message     string `json:"message,omitempty"`
	Phase       string `json:"phase,omitempty"`
	Number      int    `json:"number,omitempty"`
	Total       int    `json:"total,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SearchCount int    `json:"search_count,omitempty"`
	Report      string `json:"report,omitempty"`
	Topic       string `json:"topic,omitempty"`
	To          string `json:"to,omitempty"`
}

func Session(id string) Event { return Event{Kind: KindSession, SessionID: id} }

func Status(content string) Event { return Event{Kind: KindStatus, Content: content} }

func Statusf(format string, args ...interface{}) Event {
	return Event{Kind: KindStatus, Content: fmt.Sprintf(format, args...)}
}

func Thinking(content string) Event { return Event{Kind: KindThinking, Content: content} }

func Text(content string) Event { return Event{Kind: KindText, Content: content} }

func Search(number int) Event { return Event{Kind: KindSearch, Number: number} }

func SearchComplete(total int) Event { return Event{Kind: KindSearchComplete, Total: total} }

func PhaseStart(phase string, number, total int, title, description string) Event {
	return Event{
		Kind:        KindPhaseStart,
		Phase:       phase,
		Number:      number,
		Total:       total,
		Title:       title,
		Description: description,
	}
}

func PhaseComplete(phase string, searches int) Event {
	return Event{Kind: KindPhaseComplete, Phase: phase, SearchCount: searches}
}

func Clarification(content, phase string) Event {
	return Event{Kind: KindClarification, Content: content, Phase: phase}
}

func FeedbackRequest(content, phase string) Event {
	return Event{Kind: KindFeedbackRequest, Content: content, Phase: phase}
}

func ResearchComplete(report, topic string) Event {
	return Event{Kind: KindResearchComplete, Report: report, Topic: topic}
}

func Completion(content string) Event { return Event{Kind: KindComplete, Content: content} }

func Refinement(phase string) Event { return Event{Kind: KindRefinement, Phase: phase} }

func Navigation(to, content string) Event {
	return Event{Kind: KindNavigation, To: to, Content: content}
}

func Followup(content string) Event { return Event{Kind: KindFollowup, Content: content} }

func Errorf(format string, args ...interface{}) Event {
	return Event{Kind: KindError, Message: fmt.Sprintf(format, args...)}
}

func Ping() Event { return Event{Kind: KindPing} }

func Done(sessionID string) Event { return Event{Kind: KindDone, SessionID: sessionID} }
