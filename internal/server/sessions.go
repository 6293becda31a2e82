package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/curricula/internal/session"
	"github.com/mohammad-safakhou/curricula/models"
)

const titleWords = 6

// SessionsHandler owns the session CRUD surface.
type SessionsHandler struct {
	Store session.Store
}

func (s *SessionsHandler) Register(g *echo.Group) {
	g.POST("", s.create)
	g.GET("", s.list)
	g.POST("/generate-title", s.generateTitle)
	g.GET("/:id", s.get)
	g.PUT("/:id", s.update)
	g.DELETE("/:id", s.delete)
	g.GET("/:id/report", s.report)
}

func (s *SessionsHandler) create(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID, _ := c.Get("user_id").(string)
	sess, err := s.Store.Create(c.Request().Context(), userID, req.ClientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toSessionResponse(sess))
}

func (s *SessionsHandler) list(c echo.Context) error {
	userID, _ := c.Get("user_id").(string)
	f := session.Filter{
		UserID:   userID,
		ClientID: c.QueryParam("client_id"),
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		f.Limit = n
	}
	if v := c.QueryParam("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid offset")
		}
		f.Offset = n
	}

	sessions, total, err := s.Store.List(c.Request().Context(), f)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := SessionListResponse{Sessions: make([]SessionResponse, 0, len(sessions)), Total: total}
	for _, sess := range sessions {
		out.Sessions = append(out.Sessions, toSessionResponse(sess))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *SessionsHandler) get(c echo.Context) error {
	sess, err := s.fetch(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	msgs, err := s.Store.Messages(ctx, sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	detail := SessionDetailResponse{
		SessionResponse: toSessionResponse(sess),
		Messages:        make([]MessageResponse, 0, len(msgs)),
	}
	for _, m := range msgs {
		detail.Messages = append(detail.Messages, MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			ToolName:  m.ToolName,
			CreatedAt: m.CreatedAt,
		})
	}
	if st, err := s.Store.LoadState(ctx, sess.ID); err == nil && st.Research != nil {
		detail.Phase = string(st.Research.Phase)
		detail.TotalSearches = st.Research.TotalSearches
	}
	return c.JSON(http.StatusOK, detail)
}

func (s *SessionsHandler) update(c echo.Context) error {
	sess, err := s.fetch(c)
	if err != nil {
		return err
	}
	var req UpdateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title is required")
	}
	title := truncateTitle(req.Title, maxTitleLen)
	if err := s.Store.Update(c.Request().Context(), sess.ID, session.Update{Title: session.String(title)}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	sess.Title = title
	return c.JSON(http.StatusOK, toSessionResponse(sess))
}

func (s *SessionsHandler) delete(c echo.Context) error {
	sess, err := s.fetch(c)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(c.Request().Context(), sess.ID); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

// generateTitle derives a session title from the opening words of a message,
// without touching any session.
func (s *SessionsHandler) generateTitle(c echo.Context) error {
	var req GenerateTitleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	title := titleFromMessage(req.Message)
	if title == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}
	return c.JSON(http.StatusOK, TitleResponse{Title: title})
}

// report downloads the final research report as markdown. It exists once
// the synthesis phase has run.
func (s *SessionsHandler) report(c echo.Context) error {
	sess, err := s.fetch(c)
	if err != nil {
		return err
	}
	st, err := s.Store.LoadState(c.Request().Context(), sess.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if st.Research == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no report for this session yet")
	}
	report := st.Research.Findings[models.PhaseSynthesis]
	if report == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no report for this session yet")
	}

	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", reportFilename(sess)))
	return c.Blob(http.StatusOK, "text/markdown; charset=utf-8", []byte(report))
}

// fetch loads the addressed session and hides other users' sessions behind
// a not-found, never a forbidden.
func (s *SessionsHandler) fetch(c echo.Context) (session.Session, error) {
	sess, err := s.Store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, session.ErrNotFound) {
		return session.Session{}, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	if err != nil {
		return session.Session{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if userID, _ := c.Get("user_id").(string); userID != "" && sess.UserID != "" && sess.UserID != userID {
		return session.Session{}, echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return sess, nil
}

func toSessionResponse(s session.Session) SessionResponse {
	return SessionResponse{
		ID:           s.ID,
		ClientID:     s.ClientID,
		Title:        s.Title,
		Industry:     s.Industry,
		Status:       s.Status,
		MessageCount: s.MessageCount,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// titleFromMessage takes the first words of a message as a title.
func titleFromMessage(message string) string {
	fields := strings.Fields(message)
	if len(fields) == 0 {
		return ""
	}
	if len(fields) > titleWords {
		fields = fields[:titleWords]
	}
	return truncateTitle(strings.Join(fields, " "), maxTitleLen)
}

func reportFilename(s session.Session) string {
	base := strings.TrimSpace(s.Industry)
	if base == "" {
		base = "research"
	}
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "research"
	}
	return base + "-report.md"
}
