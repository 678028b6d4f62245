// Package models defines data structures for the scraper.
package models

import "time"

// Entity type names, also used as directory names under the data root.
const (
	EntityTeams     = "teams"
	EntityStandings = "standings"
	EntityStats     = "stats"
)

// Every record carries the URL it was extracted from and the extraction time
// for provenance.

// Team identifies one club and the page its detailed stats live on.
type Team struct {
	Name        string    `json:"name"`
	URL         string    `json:"url"`
	SourceURL   string    `json:"sourceUrl"`
	ExtractedAt time.Time `json:"extractedAt"`
}

// StandingsRow is one row of the league table.
type StandingsRow struct {
	Rank         int       `json:"rank"`
	Team         string    `json:"team"`
	Points       int       `json:"points"`
	Wins         int       `json:"wins"`
	Draws        int       `json:"draws"`
	Losses       int       `json:"losses"`
	GoalsFor     int       `json:"goals_for"`
	GoalsAgainst int       `json:"goals_against"`
	GoalDiff     int       `json:"goal_diff"`
	SourceURL    string    `json:"sourceUrl"`
	ExtractedAt  time.Time `json:"extractedAt"`
}

// TeamStats holds the squad totals scraped from one team's page.
type TeamStats struct {
	Team        string    `json:"team"`
	Matches     int       `json:"matches"`
	Possession  float64   `json:"possession"`
	Goals       int       `json:"goals"`
	Assists     int       `json:"assists"`
	XG          float64   `json:"xg"`
	XGAssist    float64   `json:"xg_assist"`
	SourceURL   string    `json:"sourceUrl"`
	ExtractedAt time.Time `json:"extractedAt"`
}
