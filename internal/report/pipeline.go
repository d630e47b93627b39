package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brightpath/assess/internal/i18n"
	"github.com/brightpath/assess/internal/model"
	"github.com/brightpath/assess/internal/store"
)

// Narrator produces a natural-language commentary from a statistics summary.
// Implementations are expected to respect the context deadline.
type Narrator interface {
	Narrate(ctx context.Context, summary string) (string, error)
}

// Pipeline is the phase-2 report enrichment: it asks the narrator for a
// commentary on the phase-1 statistics and merges it into the stored report,
// falling back to a localized template when the narrator is unavailable. A
// report is never left without commentary.
type Pipeline struct {
	store    *store.Store
	narrator Narrator
	timeout  time.Duration
	lang     string
}

// NewPipeline creates the report pipeline. narrator may be nil, in which
// case the template fallback is always used.
func NewPipeline(s *store.Store, n Narrator, timeout time.Duration, lang string) *Pipeline {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if lang == "" {
		lang = "en"
	}
	return &Pipeline{store: s, narrator: n, timeout: timeout, lang: lang}
}

// EnrichAsync runs phase 2 detached from the caller. Completion must never
// wait on or fail because of the narrative service.
func (p *Pipeline) EnrichAsync(sessionID string, stats model.SessionStats) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.Enrich(ctx, sessionID, stats); err != nil {
			slog.Error("report enrichment failed", "session_id", sessionID, "error", err)
		}
	}()
}

// Enrich produces the narrative and writes it to the stored report.
func (p *Pipeline) Enrich(ctx context.Context, sessionID string, stats model.SessionStats) error {
	narrative := p.narrative(ctx, stats)
	if err := p.store.SetReportNarrative(sessionID, narrative); err != nil {
		return fmt.Errorf("set narrative: %w", err)
	}
	slog.Info("report narrative stored", "session_id", sessionID)
	return nil
}

func (p *Pipeline) narrative(ctx context.Context, stats model.SessionStats) string {
	if p.narrator != nil {
		text, err := p.narrator.Narrate(ctx, Summary(stats))
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		slog.Warn("narrative unavailable, using template fallback", "error", err)
	}
	return p.Fallback(stats)
}

// Summary renders the phase-1 statistics as prose for the narrator prompt.
func Summary(stats model.SessionStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The student answered %d questions (%d scored so far) and got %d correct, an accuracy of %.0f%%.\n",
		stats.TotalQuestions, stats.ScoredQuestions, stats.CorrectAnswers, stats.Accuracy*100)
	fmt.Fprintf(&sb, "Estimated ability is %.2f on a 0-1 scale (display score %d/100, around the %dth percentile, grade equivalent %d).\n",
		stats.Ability, stats.DisplayScore, stats.Percentile, stats.GradeEquivalent)
	if len(stats.WeakTopics) > 0 {
		fmt.Fprintf(&sb, "Weak topics: %s.\n", strings.Join(stats.WeakTopics, ", "))
	}
	if len(stats.StrongTopics) > 0 {
		fmt.Fprintf(&sb, "Strong topics: %s.\n", strings.Join(stats.StrongTopics, ", "))
	}
	fmt.Fprintf(&sb, "Total time spent: %d seconds (average %.0f seconds per question).",
		stats.TotalSeconds, stats.AvgSeconds)
	return sb.String()
}

// Fallback builds the deterministic template narrative in the pipeline's
// configured language.
func (p *Pipeline) Fallback(stats model.SessionStats) string {
	ctx := i18n.WithLocalizer(context.Background(), i18n.NewLocalizer(p.lang))

	parts := []string{i18n.Td(ctx, "report.fallback_summary", map[string]any{
		"Correct": stats.CorrectAnswers,
		"Scored":  stats.ScoredQuestions,
		"Percent": int(stats.Accuracy * 100),
		"Band":    i18n.T(ctx, stats.AbilityBand),
		"Score":   stats.DisplayScore,
	})}
	if len(stats.WeakTopics) > 0 {
		parts = append(parts, i18n.Td(ctx, "report.fallback_weak", map[string]any{
			"Topics": strings.Join(stats.WeakTopics, ", "),
		}))
	}
	if len(stats.StrongTopics) > 0 {
		parts = append(parts, i18n.Td(ctx, "report.fallback_strong", map[string]any{
			"Topics": strings.Join(stats.StrongTopics, ", "),
		}))
	}
	return strings.Join(parts, " ")
}
