package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/mohammad-safakhou/newslens/internal/helpers"
	"github.com/mohammad-safakhou/newslens/models"
)

const (
	insightArticleChars = 2000
	insightContextChars = 8000
)

// InsightRef selects one cached article and the side it should count for.
// An empty Bias falls back to the cached label.
type InsightRef struct {
	URL  string           `json:"url"`
	Bias models.BiasLabel `json:"bias"`
}

// GenerateInsights contrasts the referenced left and right leaning articles.
// Unknown urls and refs on neither side are skipped.
func (s *Service) GenerateInsights(ctx context.Context, sessionID string, refs []InsightRef) (models.Insights, error) {
	if err := s.requireSession(ctx, sessionID); err != nil {
		return models.Insights{}, err
	}
	var left, right []string
	for _, ref := range refs {
		a, found, err := s.cache.GetArticle(ctx, sessionID, ref.URL)
		if err != nil {
			return models.Insights{}, err
		}
		if !found {
			continue
		}
		label := ref.Bias
		if parsed, ok := models.ParseBiasLabel(string(label)); ok {
			label = parsed
		} else {
			label = a.BiasOrEmpty()
		}
		entry := fmt.Sprintf("[%s] %s\n%s", a.Source, a.Title, helpers.Truncate(s.fullText(ctx, a), insightArticleChars))
		switch {
		case label.IsLeft():
			left = append(left, entry)
		case label.IsRight():
			right = append(right, entry)
		}
	}
	if len(left) == 0 && len(right) == 0 {
		return models.Insights{}, &models.ValidationError{Field: "articles", Reason: "no left or right leaning articles found in session"}
	}
	leftCtx := helpers.Truncate(strings.Join(left, "\n\n"), insightContextChars)
	rightCtx := helpers.Truncate(strings.Join(right, "\n\n"), insightContextChars)

	out, err := s.llm.GenerateInsights(ctx, leftCtx, rightCtx)
	if err != nil {
		return models.Insights{}, fmt.Errorf("generate insights: %w", err)
	}
	return out, nil
}
