package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/pmarques/go-scrape-fbref/models"
)

// BuildTeam validates a raw team link and produces a record with
// provenance.
func BuildTeam(raw RawTeam, sourceURL string, extractedAt time.Time) (*models.Team, error) {
	if strings.TrimSpace(raw.Name) == "" {
		return nil, fmt.Errorf("team missing name")
	}
	if strings.TrimSpace(raw.URL) == "" {
		return nil, fmt.Errorf("team %s missing url", raw.Name)
	}
	return &models.Team{
		Name:        strings.TrimSpace(raw.Name),
		URL:         raw.URL,
		SourceURL:   sourceURL,
		ExtractedAt: extractedAt,
	}, nil
}

// BuildStandingsRow validates a raw standings row and produces a record
// with provenance. Rows with missing or unparseable numeric fields are
// rejected so the caller can drop them without aborting the batch.
func BuildStandingsRow(raw RawStandingsRow, sourceURL string, extractedAt time.Time) (*models.StandingsRow, error) {
	if strings.TrimSpace(raw.Team) == "" {
		return nil, fmt.Errorf("standings row missing team")
	}

	rank, err := ParseInt(raw.Rank)
	if err != nil {
		return nil, fmt.Errorf("standings row for %s: rank: %w", raw.Team, err)
	}
	points, err := ParseInt(raw.Points)
	if err != nil {
		return nil, fmt.Errorf("standings row for %s: points: %w", raw.Team, err)
	}
	wins, err := ParseInt(raw.Wins)
	if err != nil {
		return nil, fmt.Errorf("standings row for %s: wins: %w", raw.Team, err)
	}
	draws, err := ParseInt(raw.Draws)
	if err != nil {
		return nil, fmt.Errorf("standings row for %s: draws: %w", raw.Team, err)
	}
	losses, err := ParseInt(raw.Losses)
	if err != nil {
		return nil, fmt.Errorf("standings row for %s: losses: %w", raw.Team, err)
	}
	goalsFor, err := ParseInt(raw.GoalsFor)
	if err != nil {
		return nil, fmt.Errorf("standings row for %s: goals for: %w", raw.Team, err)
	}
	goalsAgainst, err := ParseInt(raw.GoalsAgainst)
	if err != nil {
		return nil, fmt.Errorf("standings row for %s: goals against: %w", raw.Team, err)
	}
	goalDiff, err := ParseInt(raw.GoalDiff)
	if err != nil {
		return nil, fmt.Errorf("standings row for %s: goal diff: %w", raw.Team, err)
	}

	return &models.StandingsRow{
		Rank:         rank,
		Team:         strings.TrimSpace(raw.Team),
		Points:       points,
		Wins:         wins,
		Draws:        draws,
		Losses:       losses,
		GoalsFor:     goalsFor,
		GoalsAgainst: goalsAgainst,
		GoalDiff:     goalDiff,
		SourceURL:    sourceURL,
		ExtractedAt:  extractedAt,
	}, nil
}

// BuildTeamStats validates raw squad totals and produces a record with
// provenance.
func BuildTeamStats(team string, raw RawTeamStats, sourceURL string, extractedAt time.Time) (*models.TeamStats, error) {
	if strings.TrimSpace(team) == "" {
		return nil, fmt.Errorf("team stats missing team name")
	}

	matches, err := ParseInt(raw.Matches)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: matches: %w", team, err)
	}
	possession, err := ParseFloat(raw.Possession)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: possession: %w", team, err)
	}
	goals, err := ParseInt(raw.Goals)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: goals: %w", team, err)
	}
	assists, err := ParseInt(raw.Assists)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: assists: %w", team, err)
	}
	xg, err := ParseFloat(raw.XG)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: xg: %w", team, err)
	}
	xgAssist, err := ParseFloat(raw.XGAssist)
	if err != nil {
		return nil, fmt.Errorf("stats for %s: xg assist: %w", team, err)
	}

	return &models.TeamStats{
		Team:        strings.TrimSpace(team),
		Matches:     matches,
		Possession:  possession,
		Goals:       goals,
		Assists:     assists,
		XG:          xg,
		XGAssist:    xgAssist,
		SourceURL:   sourceURL,
		ExtractedAt: extractedAt,
	}, nil
}
