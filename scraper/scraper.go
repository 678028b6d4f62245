// Package scraper drives browser sessions through the extraction pipeline:
// session pool, rate limiter, and retry policy around per-page-type parsing.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pmarques/go-scrape-fbref/browser"
	"github.com/pmarques/go-scrape-fbref/config"
	"github.com/pmarques/go-scrape-fbref/models"
	"github.com/pmarques/go-scrape-fbref/parser"
	"github.com/pmarques/go-scrape-fbref/pipeline"
	"github.com/pmarques/go-scrape-fbref/ratelimit"
)

// Scraper runs the per-page-type extraction tasks. All navigation goes
// through the shared rate limiter; all failures go through the executor's
// retry policy.
type Scraper struct {
	cfg       *config.Config
	limiter   *ratelimit.Limiter
	exec      *Executor
	processor *pipeline.Processor
	metrics   *Metrics
}

// NewScraper wires the extraction pipeline together.
func NewScraper(cfg *config.Config, exec *Executor, limiter *ratelimit.Limiter, processor *pipeline.Processor, metrics *Metrics) *Scraper {
	return &Scraper{
		cfg:       cfg,
		limiter:   limiter,
		exec:      exec,
		processor: processor,
		metrics:   metrics,
	}
}

// fetchDocument rate-limits, navigates, and returns the rendered document.
// The page wait is bounded by the configured page timeout; timeouts and
// navigation errors come back as transient failures attributed to the
// session.
func (s *Scraper) fetchDocument(ctx context.Context, sess *browser.Session, url, marker string) (string, error) {
	if err := s.limiter.Admit(ctx); err != nil {
		return "", err
	}

	s.metrics.IncRequest("started")
	start := time.Now()

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
	defer cancel()

	if err := sess.Navigate(navCtx, url, marker); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", TransientSession("navigation", err)
	}
	html, err := sess.HTML(navCtx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", TransientSession("page_dump", err)
	}
	s.metrics.ObserveDuration(time.Since(start))

	if blocked(html) {
		return "", Transient("temporary_block", fmt.Errorf("target rate-limited the request"))
	}
	s.metrics.IncRequest("completed")
	return html, nil
}

// blocked detects the target's rate-limit interstitial.
func blocked(html string) bool {
	lower := strings.ToLower(html)
	return strings.Contains(lower, "rate limited request") ||
		strings.Contains(lower, "429 too many requests")
}

// FetchTeams resolves the league's teams from the overview page.
func (s *Scraper) FetchTeams(ctx context.Context) ([]*models.Team, Result) {
	var teams []*models.Team
	res := s.exec.Execute(ctx, Task{
		ID:    "teams",
		Stage: models.EntityTeams,
		Run: func(ctx context.Context, sess *browser.Session) error {
			html, err := s.fetchDocument(ctx, sess, s.cfg.BaseURL, parser.TeamsMarker)
			if err != nil {
				return err
			}
			raws, err := parser.Teams(html)
			if err != nil {
				return Transient("parse_teams", err)
			}
			teams = s.processor.PrepareTeams(raws, s.cfg.BaseURL, time.Now().UTC())
			if len(teams) == 0 {
				return Transient("no_teams", fmt.Errorf("every team row was dropped"))
			}
			return nil
		},
	})
	if res.Status == models.StatusSucceeded {
		s.metrics.AddRecords(models.EntityTeams, len(teams))
		slog.Info("teams resolved", slog.Int("count", len(teams)))
		return teams, res
	}
	return nil, res
}

// FetchStandings extracts the league table.
func (s *Scraper) FetchStandings(ctx context.Context) ([]*models.StandingsRow, Result) {
	var rows []*models.StandingsRow
	res := s.exec.Execute(ctx, Task{
		ID:    "standings",
		Stage: models.EntityStandings,
		Run: func(ctx context.Context, sess *browser.Session) error {
			html, err := s.fetchDocument(ctx, sess, s.cfg.BaseURL, parser.StandingsMarker)
			if err != nil {
				return err
			}
			raws, err := parser.Standings(html)
			if err != nil {
				return Transient("parse_standings", err)
			}
			rows = s.processor.PrepareStandings(raws, s.cfg.BaseURL, time.Now().UTC())
			if len(rows) == 0 {
				return Transient("no_standings", fmt.Errorf("every standings row was dropped"))
			}
			return nil
		},
	})
	if res.Status == models.StatusSucceeded {
		s.metrics.AddRecords(models.EntityStandings, len(rows))
		slog.Info("standings extracted", slog.Int("rows", len(rows)))
		return rows, res
	}
	return nil, res
}

// FetchTeamStats extracts one team's squad totals from its page. A record
// that fails validation is dropped, not retried: the task comes back
// skipped.
func (s *Scraper) FetchTeamStats(ctx context.Context, team *models.Team) (*models.TeamStats, Result) {
	var (
		stats   *models.TeamStats
		dropped error
	)
	res := s.exec.Execute(ctx, Task{
		ID:    "team-stats/" + slug(team.Name),
		Stage: models.EntityStats,
		Run: func(ctx context.Context, sess *browser.Session) error {
			html, err := s.fetchDocument(ctx, sess, team.URL, parser.StatsMarker)
			if err != nil {
				return err
			}
			raw, err := parser.TeamStats(html)
			if err != nil {
				return Transient("parse_team_stats", err)
			}
			built, err := s.processor.PrepareTeamStats(team.Name, *raw, team.URL, time.Now().UTC())
			if err != nil {
				dropped = err
				return nil
			}
			stats = built
			return nil
		},
	})
	if res.Status != models.StatusSucceeded {
		return nil, res
	}
	if dropped != nil {
		res.Status = models.StatusSkipped
		res.Reason = dropped.Error()
		return nil, res
	}
	s.metrics.AddRecords(models.EntityStats, 1)
	return stats, res
}

func slug(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "-"))
}
