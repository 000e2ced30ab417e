package results

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/mutual-match/internal/catalog"
	"github.com/spigell/mutual-match/internal/logger"
	"github.com/spigell/mutual-match/internal/matching"
	"github.com/spigell/mutual-match/internal/session"
)

var ErrIncomplete = errors.New("both partners must complete the quiz first")

type Config struct {
	Quota        int `mapstructure:"quota"`
	PerfectLimit int `mapstructure:"perfect-limit"`
}

func DefaultConfig() Config {
	return Config{
		Quota:        matching.DefaultTeaserQuota,
		PerfectLimit: matching.DefaultTeaserPerfectLimit,
	}
}

type CategoryResult struct {
	ID    string `json:"id"`
	Emoji string `json:"emoji"`
	// Total counts every match in the category, visible or not.
	Total   int              `json:"total"`
	Matches []matching.Match `json:"matches"`
}

// Result is what a couple sees. Unpaid results carry only the teaser; the
// remaining matches are counted in Locked but never listed.
type Result struct {
	QuizID             string           `json:"quizId,omitempty"`
	PartnerAName       string           `json:"partnerAName,omitempty"`
	PartnerBName       string           `json:"partnerBName,omitempty"`
	Paid               bool             `json:"paid"`
	TotalMatches       int              `json:"totalMatches"`
	PerfectMatches     int              `json:"perfectMatches"`
	GoodMatches        int              `json:"goodMatches"`
	AnsweredBoth       int              `json:"answeredBoth"`
	CompatibilityScore int              `json:"compatibilityScore"`
	Matches            []matching.Match `json:"matches"`
	Locked             int              `json:"locked"`
	Categories         []CategoryResult `json:"categories"`
}

// Build applies the paywall to a summary. Categories follow catalog order.
func Build(c *catalog.Catalog, summary *matching.Summary, paid bool, cfg Config) Result {
	visible := summary.Matches
	if !paid {
		visible = matching.TeaserSelector{PerfectLimit: cfg.PerfectLimit}.Select(summary.Matches, cfg.Quota)
	}

	shown := make(map[string]struct{}, len(visible))
	for _, m := range visible {
		shown[m.Question.ID] = struct{}{}
	}

	categories := make([]CategoryResult, 0, len(summary.ByCategory))
	for _, cat := range c.Categories() {
		all := summary.ByCategory[cat.ID]
		matches := make([]matching.Match, 0, len(all))
		for _, m := range all {
			if _, ok := shown[m.Question.ID]; ok {
				matches = append(matches, m)
			}
		}
		categories = append(categories, CategoryResult{
			ID:      cat.ID,
			Emoji:   cat.Emoji,
			Total:   len(all),
			Matches: matches,
		})
	}

	return Result{
		Paid:               paid,
		TotalMatches:       summary.TotalMatches,
		PerfectMatches:     summary.PerfectMatches,
		GoodMatches:        summary.GoodMatches,
		AnsweredBoth:       summary.AnsweredBoth,
		CompatibilityScore: summary.CompatibilityScore,
		Matches:            visible,
		Locked:             summary.TotalMatches - len(visible),
		Categories:         categories,
	}
}

type SessionSource interface {
	Get(ctx context.Context, id string) (*session.Session, error)
}

type Recorder interface {
	ObserveResults(paid bool, score int)
}

// Service recomputes results from the stored answers on every call.
type Service struct {
	sessions SessionSource
	catalog  *catalog.Catalog
	cfg      Config
	recorder Recorder
	logger   *zap.Logger
}

func NewService(sessions SessionSource, c *catalog.Catalog, cfg Config, recorder Recorder, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if c == nil {
		c = catalog.Default()
	}

	return &Service{
		sessions: sessions,
		catalog:  c,
		cfg:      cfg,
		recorder: recorder,
		logger:   log,
	}
}

func (s *Service) Results(ctx context.Context, id string) (Result, error) {
	sess, err := s.sessions.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !sess.Complete() {
		return Result{}, fmt.Errorf("%w: quiz %s", ErrIncomplete, sess.ID)
	}

	summary := matching.Aggregate(s.catalog, sess.AnswersA, sess.AnswersB)
	res := Build(s.catalog, summary, sess.Paid, s.cfg)
	res.QuizID = sess.ID
	res.PartnerAName = sess.PartnerAName
	res.PartnerBName = sess.PartnerBName

	if s.recorder != nil {
		s.recorder.ObserveResults(sess.Paid, res.CompatibilityScore)
	}

	logger.WithFields(s.logger, logger.QuizFields(sess.ID, "")...).Debug(
		"results computed",
		zap.Bool("paid", sess.Paid),
		zap.Int("visible", len(res.Matches)),
		zap.Int("locked", res.Locked),
	)
	return res, nil
}
