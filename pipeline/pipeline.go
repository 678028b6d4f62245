// Package pipeline validates, de-duplicates, and persists extracted records.
package pipeline

import (
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pmarques/go-scrape-fbref/models"
	"github.com/pmarques/go-scrape-fbref/parser"
)

// seenCacheSize bounds the de-duplication cache. A league page holds a few
// dozen rows, so this is generous.
const seenCacheSize = 1024

// Processor prepares raw parser output for persistence: it validates each
// record, drops and counts invalid rows instead of aborting the batch, and
// de-duplicates records by identity.
type Processor struct {
	seen *lru.Cache[string, struct{}]

	mu      sync.Mutex
	dropped map[string]int
}

// NewProcessor builds a processor with a bounded de-duplication cache.
func NewProcessor() (*Processor, error) {
	seen, err := lru.New[string, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Processor{
		seen:    seen,
		dropped: make(map[string]int),
	}, nil
}

// PrepareTeams validates and de-duplicates raw team links.
func (p *Processor) PrepareTeams(raws []parser.RawTeam, sourceURL string, extractedAt time.Time) []*models.Team {
	teams := make([]*models.Team, 0, len(raws))
	for _, raw := range raws {
		team, err := parser.BuildTeam(raw, sourceURL, extractedAt)
		if err != nil {
			p.drop("invalid_team", err)
			continue
		}
		if !p.firstSight("team:" + team.URL) {
			p.drop("duplicate_team", nil)
			continue
		}
		teams = append(teams, team)
	}
	return teams
}

// PrepareStandings validates and de-duplicates raw standings rows.
func (p *Processor) PrepareStandings(raws []parser.RawStandingsRow, sourceURL string, extractedAt time.Time) []*models.StandingsRow {
	rows := make([]*models.StandingsRow, 0, len(raws))
	for _, raw := range raws {
		row, err := parser.BuildStandingsRow(raw, sourceURL, extractedAt)
		if err != nil {
			p.drop("invalid_standings_row", err)
			continue
		}
		if !p.firstSight("standings:" + row.Team) {
			p.drop("duplicate_standings_row", nil)
			continue
		}
		rows = append(rows, row)
	}
	return rows
}

// PrepareTeamStats validates one team's squad totals.
func (p *Processor) PrepareTeamStats(team string, raw parser.RawTeamStats, sourceURL string, extractedAt time.Time) (*models.TeamStats, error) {
	stats, err := parser.BuildTeamStats(team, raw, sourceURL, extractedAt)
	if err != nil {
		p.drop("invalid_team_stats", err)
		return nil, err
	}
	return stats, nil
}

// Dropped returns a snapshot of drop counts by reason.
func (p *Processor) Dropped() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int, len(p.dropped))
	for k, v := range p.dropped {
		out[k] = v
	}
	return out
}

// firstSight reports whether the key has not been seen before, recording it.
func (p *Processor) firstSight(key string) bool {
	ok, _ := p.seen.ContainsOrAdd(key, struct{}{})
	return !ok
}

func (p *Processor) drop(reason string, err error) {
	p.mu.Lock()
	p.dropped[reason]++
	p.mu.Unlock()
	if err != nil {
		slog.Warn("dropping invalid record", slog.String("reason", reason), slog.Any("error", err))
	} else {
		slog.Debug("dropping record", slog.String("reason", reason))
	}
}
