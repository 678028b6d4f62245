package scraper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pmarques/go-scrape-fbref/browser"
	"github.com/pmarques/go-scrape-fbref/config"
	"github.com/pmarques/go-scrape-fbref/models"
	"github.com/pmarques/go-scrape-fbref/pipeline"
	"github.com/pmarques/go-scrape-fbref/ratelimit"
)

// Stage names the orchestrator's sequential states.
type Stage string

const (
	StageIdle      Stage = "idle"
	StageTeams     Stage = "fetching_teams"
	StageStandings Stage = "fetching_standings"
	StageStats     Stage = "fetching_team_stats"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
)

// Orchestrator sequences the extraction stages over one session pool. The
// pool is created when a run starts and torn down when it ends, on every
// exit path.
type Orchestrator struct {
	cfg      *config.Config
	launcher browser.Launcher
	store    *pipeline.Store
	metrics  *Metrics

	mu    sync.Mutex
	stage Stage
}

// NewOrchestrator builds an orchestrator. The launcher is owned by the
// orchestrator from here on and is closed with the pool at the end of Run.
func NewOrchestrator(cfg *config.Config, launcher browser.Launcher, store *pipeline.Store, metrics *Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		launcher: launcher,
		store:    store,
		metrics:  metrics,
		stage:    StageIdle,
	}
}

// Stage returns the orchestrator's current state.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

func (o *Orchestrator) advance(next Stage) {
	o.mu.Lock()
	o.stage = next
	o.mu.Unlock()
	slog.Info("stage started", slog.String("stage", string(next)))
}

// Run executes teams -> standings -> per-team stats and always returns a
// report. A transient failure in one team's task is recorded and the stage
// continues; a fatal failure flushes records already collected for the
// current stage and halts the run.
func (o *Orchestrator) Run(ctx context.Context) *models.RunReport {
	report := models.NewRunReport(uuid.NewString())
	defer report.Finish()

	pool := browser.NewPool(o.launcher, browser.PoolOptions{
		Max:          o.cfg.PoolSize,
		DegradeAfter: o.cfg.DegradeAfter,
		Notify:       o.metrics.SetSessionsLive,
	})
	defer pool.Shutdown()

	processor, err := pipeline.NewProcessor()
	if err != nil {
		report.SetFatal(Fatal("initialising pipeline", err))
		o.advance(StageFailed)
		return report
	}

	limiter := ratelimit.New(o.cfg.RateLimit, o.cfg.RatePeriod)
	exec := NewExecutor(pool, o.cfg, o.metrics)
	scr := NewScraper(o.cfg, exec, limiter, processor, o.metrics)
	key := time.Now().Format("20060102")

	// teams stage resolves the targets everything downstream depends on
	o.advance(StageTeams)
	teams, res := scr.FetchTeams(ctx)
	report.Add(taskResult(res, "teams", models.EntityTeams))
	if res.Fatal {
		report.SetFatal(Fatal("teams stage", nil))
		o.advance(StageFailed)
		return report
	}
	if res.Status == models.StatusSucceeded {
		if err := o.store.Store(models.EntityTeams, key, teams); err != nil {
			report.SetFatal(Fatal("persisting teams", err))
			o.advance(StageFailed)
			return report
		}
	}

	// standings do not depend on team URLs, so the stage runs even if the
	// teams fetch exhausted its retries
	o.advance(StageStandings)
	rows, res := scr.FetchStandings(ctx)
	report.Add(taskResult(res, "standings", models.EntityStandings))
	if res.Fatal {
		report.SetFatal(Fatal("standings stage", nil))
		o.advance(StageFailed)
		return report
	}
	if res.Status == models.StatusSucceeded {
		if err := o.store.Store(models.EntityStandings, key, rows); err != nil {
			report.SetFatal(Fatal("persisting standings", err))
			o.advance(StageFailed)
			return report
		}
	}

	o.advance(StageStats)
	targets := o.selectTargets(teams)
	if len(targets) == 0 {
		report.Add(models.TaskResult{
			Task:   "team-stats",
			Stage:  models.EntityStats,
			Status: models.StatusSkipped,
			Reason: "no teams resolved",
		})
		o.finish(report)
		return report
	}

	stats, fatal := o.fetchAllTeamStats(ctx, scr, report, targets)
	if len(stats) > 0 {
		if err := o.store.Store(models.EntityStats, key, stats); err != nil {
			report.SetFatal(Fatal("persisting team stats", err))
			o.advance(StageFailed)
			return report
		}
	}
	if fatal {
		report.SetFatal(Fatal("team stats stage", nil))
		o.advance(StageFailed)
		return report
	}

	if dropped := processor.Dropped(); len(dropped) > 0 {
		slog.Warn("records dropped during run", slog.Any("counts", dropped))
	}
	if _, err := o.store.CleanupBackups(o.cfg.BackupRetention); err != nil {
		slog.Error("backup cleanup failed", slog.Any("error", err))
	}

	o.finish(report)
	return report
}

// fetchAllTeamStats runs one stats task per team, concurrently up to the
// pool's capacity. A fatal result cancels the remaining tasks; everything
// collected so far is still returned for flushing.
func (o *Orchestrator) fetchAllTeamStats(ctx context.Context, scr *Scraper, report *models.RunReport, targets []*models.Team) ([]*models.TeamStats, bool) {
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		fatal    bool
		ordered  = make([]*models.TeamStats, len(targets))
		parallel = make(chan struct{}, o.cfg.PoolSize)
	)

	for i, team := range targets {
		wg.Add(1)
		parallel <- struct{}{}
		go func(i int, team *models.Team) {
			defer wg.Done()
			defer func() { <-parallel }()

			stats, res := scr.FetchTeamStats(stageCtx, team)
			report.Add(taskResult(res, "team-stats/"+slug(team.Name), models.EntityStats))
			mu.Lock()
			defer mu.Unlock()
			if res.Fatal {
				fatal = true
				cancel()
				return
			}
			if stats != nil {
				ordered[i] = stats
			}
		}(i, team)
	}
	wg.Wait()

	stats := make([]*models.TeamStats, 0, len(targets))
	for _, s := range ordered {
		if s != nil {
			stats = append(stats, s)
		}
	}
	return stats, fatal
}

// selectTargets applies the configured team filter.
func (o *Orchestrator) selectTargets(teams []*models.Team) []*models.Team {
	if len(o.cfg.Teams) == 0 {
		return teams
	}
	wanted := make(map[string]bool, len(o.cfg.Teams))
	for _, name := range o.cfg.Teams {
		wanted[slug(name)] = true
	}
	var out []*models.Team
	for _, t := range teams {
		if wanted[slug(t.Name)] {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) finish(report *models.RunReport) {
	o.advance(StageDone)
	counts := report.CountByStatus()
	slog.Info("run summary",
		slog.String("run_id", report.RunID),
		slog.Int("succeeded", counts[models.StatusSucceeded]),
		slog.Int("failed", counts[models.StatusFailed]),
		slog.Int("skipped", counts[models.StatusSkipped]),
		slog.Int("cancelled", counts[models.StatusCancelled]),
	)
}

func taskResult(res Result, task, stage string) models.TaskResult {
	return models.TaskResult{
		Task:           task,
		Stage:          stage,
		Status:         res.Status,
		Reason:         res.Reason,
		DiagnosticPath: res.DiagnosticPath,
		Attempts:       res.Attempts,
		Duration:       res.Duration,
	}
}
