// Package parser turns rendered fbref documents into typed records. Every
// function here is pure over the document text so page parsing is testable
// against canned fixtures without a live browser.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const fbrefBase = "https://fbref.com"

// Content markers the extraction pipeline waits for before parsing. The
// HTML structure behind them is an opaque contract per page type.
const (
	TeamsMarker     = "table[id^='results'][id$='_overall']"
	StandingsMarker = "table[id^='results'][id$='_overall']"
	StatsMarker     = "table[id^='stats_standard']"
)

func document(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

// RawTeam is one team link found on the league overview page.
type RawTeam struct {
	Name string
	URL  string
}

// Teams extracts the team name and page URL from the league overview table.
func Teams(html string) ([]RawTeam, error) {
	doc, err := document(html)
	if err != nil {
		return nil, err
	}

	table := doc.Find(TeamsMarker).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("teams table not found")
	}

	var teams []RawTeam
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		link := row.Find("td[data-stat='team'] a").First()
		if link.Length() == 0 {
			return
		}
		name := strings.TrimSpace(link.Text())
		href, ok := link.Attr("href")
		if name == "" || !ok || href == "" {
			return
		}
		teams = append(teams, RawTeam{Name: name, URL: absoluteURL(href)})
	})

	if len(teams) == 0 {
		return nil, fmt.Errorf("no teams found in table")
	}
	return teams, nil
}

// RawStandingsRow carries the untyped cell text of one league-table row.
type RawStandingsRow struct {
	Rank         string
	Team         string
	Points       string
	Wins         string
	Draws        string
	Losses       string
	GoalsFor     string
	GoalsAgainst string
	GoalDiff     string
}

// Standings extracts the league table rows. Spacer and repeated header rows
// are skipped; everything else is returned raw for validation downstream.
func Standings(html string) ([]RawStandingsRow, error) {
	doc, err := document(html)
	if err != nil {
		return nil, err
	}

	table := doc.Find(StandingsMarker).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("standings table not found")
	}

	var rows []RawStandingsRow
	table.Find("tbody tr").Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("spacer") || row.HasClass("thead") {
			return
		}
		rows = append(rows, RawStandingsRow{
			Rank:         cellText(row, "rank"),
			Team:         cellText(row, "team"),
			Points:       cellText(row, "points"),
			Wins:         cellText(row, "wins"),
			Draws:        cellText(row, "ties"),
			Losses:       cellText(row, "losses"),
			GoalsFor:     cellText(row, "goals_for"),
			GoalsAgainst: cellText(row, "goals_against"),
			GoalDiff:     cellText(row, "goal_diff"),
		})
	})

	if len(rows) == 0 {
		return nil, fmt.Errorf("no standings rows found")
	}
	return rows, nil
}

// RawTeamStats carries the squad-total cells of a team page.
type RawTeamStats struct {
	Matches    string
	Possession string
	Goals      string
	Assists    string
	XG         string
	XGAssist   string
}

// TeamStats extracts the squad totals row from a team's standard stats
// table.
func TeamStats(html string) (*RawTeamStats, error) {
	doc, err := document(html)
	if err != nil {
		return nil, err
	}

	table := doc.Find(StatsMarker).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("standard stats table not found")
	}
	totals := table.Find("tfoot tr").First()
	if totals.Length() == 0 {
		return nil, fmt.Errorf("squad totals row not found")
	}

	return &RawTeamStats{
		Matches:    cellText(totals, "games"),
		Possession: cellText(totals, "possession"),
		Goals:      cellText(totals, "goals"),
		Assists:    cellText(totals, "assists"),
		XG:         cellText(totals, "xg"),
		XGAssist:   cellText(totals, "xg_assist"),
	}, nil
}

// cellText reads the trimmed text of the th/td tagged with the given
// data-stat attribute.
func cellText(row *goquery.Selection, stat string) string {
	sel := fmt.Sprintf("th[data-stat='%s'], td[data-stat='%s']", stat, stat)
	return strings.TrimSpace(row.Find(sel).First().Text())
}

func absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return fbrefBase + href
}

// ParseInt converts fbref numeric cell text. Handles explicit signs and
// comma thousands separators.
func ParseInt(s string) (int, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	s = strings.TrimPrefix(s, "+")
	if s == "" {
		return 0, fmt.Errorf("empty numeric field")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse int %q: %w", s, err)
	}
	return n, nil
}

// ParseFloat converts fbref decimal cell text.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0, fmt.Errorf("empty numeric field")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse float %q: %w", s, err)
	}
	return f, nil
}
