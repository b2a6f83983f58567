package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/mohammad-safakhou/newslens/internal/aggregator"
	"github.com/mohammad-safakhou/newslens/internal/analysis"
	"github.com/mohammad-safakhou/newslens/internal/store"
	"github.com/mohammad-safakhou/newslens/models"
)

// Searcher runs one aggregated search.
type Searcher interface {
	Search(ctx context.Context, req aggregator.SearchRequest) (aggregator.SearchResult, error)
}

// Analyzer is the LLM backed read side of a session.
type Analyzer interface {
	Summarize(ctx context.Context, sessionID, url string) (analysis.Summary, error)
	GenerateInsights(ctx context.Context, sessionID string, refs []analysis.InsightRef) (models.Insights, error)
	Chat(ctx context.Context, req analysis.ChatRequest) (models.ChatReply, error)
}

// Handler serves the /api routes. Analysis may be nil.
type Handler struct {
	Searcher Searcher
	Analysis Analyzer
	Cache    store.Cache
}

func (h *Handler) Register(g *echo.Group) {
	g.GET("/search", h.search)
	g.GET("/sessions/:id/articles", h.listArticles)
	g.GET("/summary", h.summary)
	g.POST("/insights", h.insights)
	g.POST("/chat", h.chat)
}

// SourceStatus reports one source in a search response.
type SourceStatus struct {
	Source     models.SourceName `json:"source"`
	Count      int               `json:"count"`
	DurationMS int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	SessionID string           `json:"session_id"`
	Articles  []models.Article `json:"articles"`
	Sources   []SourceStatus   `json:"sources"`
	Warnings  []string         `json:"warnings,omitempty"`
}

// NewSearchResponse flattens a pipeline result for JSON output.
func NewSearchResponse(res aggregator.SearchResult) SearchResponse {
	out := SearchResponse{SessionID: res.SessionID, Articles: res.Articles}
	if out.Articles == nil {
		out.Articles = []models.Article{}
	}
	for _, s := range res.Sources {
		st := SourceStatus{Source: s.Source, Count: s.Count, DurationMS: s.Duration.Milliseconds()}
		if s.Err != nil {
			st.Error = s.Err.Error()
		}
		out.Sources = append(out.Sources, st)
	}
	for _, errs := range [][]error{res.EnrichErrors, res.PersistErrors} {
		for _, err := range errs {
			out.Warnings = append(out.Warnings, err.Error())
		}
	}
	return out
}

// search
//
//	@Summary	Aggregate news and social posts for a query
//	@Param		q			query	string	true	"search text"
//	@Param		session_id	query	string	false	"session to add results to"
//	@Param		limit		query	int		false	"items per source"
//	@Router		/api/search [get]
func (h *Handler) search(c echo.Context) error {
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	res, err := h.Searcher.Search(c.Request().Context(), aggregator.SearchRequest{
		Query:     c.QueryParam("q"),
		SessionID: strings.TrimSpace(c.QueryParam("session_id")),
		Limit:     limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewSearchResponse(res))
}

func (h *Handler) listArticles(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	ok, err := h.Cache.SessionExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrSessionNotFound
	}
	limit, err := intParam(c, "limit")
	if err != nil {
		return err
	}
	filter := store.ListFilter{Source: models.SourceName(c.QueryParam("source")), Limit: limit}
	if raw := c.QueryParam("bias"); raw != "" {
		label, ok := models.ParseBiasLabel(raw)
		if !ok {
			return &models.ValidationError{Field: "bias", Reason: "unknown label " + strconv.Quote(raw)}
		}
		filter.Bias = label
	}
	articles, err := h.Cache.ListArticles(ctx, id, filter)
	if err != nil {
		return err
	}
	if articles == nil {
		articles = []models.Article{}
	}
	return c.JSON(http.StatusOK, map[string]any{"session_id": id, "articles": articles})
}

func (h *Handler) summary(c echo.Context) error {
	if h.Analysis == nil {
		return errAnalysisDisabled
	}
	out, err := h.Analysis.Summarize(c.Request().Context(), c.QueryParam("session_id"), c.QueryParam("url"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// InsightsRequest is the body of POST /api/insights.
type InsightsRequest struct {
	SessionID string                `json:"session_id"`
	Articles  []analysis.InsightRef `json:"articles"`
}

func (h *Handler) insights(c echo.Context) error {
	if h.Analysis == nil {
		return errAnalysisDisabled
	}
	var req InsightsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	out, err := h.Analysis.GenerateInsights(c.Request().Context(), req.SessionID, req.Articles)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) chat(c echo.Context) error {
	if h.Analysis == nil {
		return errAnalysisDisabled
	}
	var req analysis.ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	out, err := h.Analysis.Chat(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, &models.ValidationError{Field: name, Reason: "must be a non-negative integer"}
	}
	return n, nil
}
