// Package matchstats serves the match statistics shown next to the live
// feed: team results, the player table and ball detections from an
// analysed clip.
package matchstats

import (
	"cmp"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
)

var (
	//go:embed data/team.json
	teamJSON []byte
	//go:embed data/players.json
	playersJSON []byte
	//go:embed data/ball.json
	ballJSON []byte
)

// Match is one played match.
type Match struct {
	Match      string `json:"match"`
	Goals      int    `json:"goals"`
	Conceded   int    `json:"conceded"`
	Possession int    `json:"possession"` // percent
	Result     string `json:"result"`     // "W", "D" or "L"
}

// Month aggregates one month of play.
type Month struct {
	Month       string `json:"month"`
	Goals       int    `json:"goals"`
	Assists     int    `json:"assists"`
	CleanSheets int    `json:"clean_sheets"`
}

// Team holds results and monthly totals.
type Team struct {
	Matches []Match `json:"matches"`
	Monthly []Month `json:"monthly"`
}

// Player is one row of the squad table.
type Player struct {
	Name     string  `json:"name"`
	Position string  `json:"position"`
	Goals    int     `json:"goals"`
	Assists  int     `json:"assists"`
	Minutes  int     `json:"minutes"`
	Rating   float64 `json:"rating"`
}

// BallDetection is one detected ball box in a frame.
type BallDetection struct {
	Frame        int        `json:"frame"`
	XYXY         [4]float64 `json:"xyxy"`
	Confidence   float64    `json:"confidence"`
	TransformedX float64    `json:"transformed_x"`
	TransformedY float64    `json:"transformed_y"`
}

// FrameCount is the number of detections in one frame.
type FrameCount struct {
	Frame int `json:"frame"`
	Count int `json:"count"`
}

// Record summarises a set of matches.
type Record struct {
	Played        int     `json:"played"`
	Wins          int     `json:"wins"`
	Draws         int     `json:"draws"`
	Losses        int     `json:"losses"`
	GoalsFor      int     `json:"goals_for"`
	GoalsAgainst  int     `json:"goals_against"`
	AvgPossession float64 `json:"avg_possession"`
}

// Store holds the loaded statistics.
type Store struct {
	Team    Team
	Players []Player
	Ball    []BallDetection
}

// Load parses the embedded fixtures.
func Load() (*Store, error) {
	return Parse(teamJSON, playersJSON, ballJSON)
}

// Parse builds a store from raw JSON documents.
func Parse(team, players, ball []byte) (*Store, error) {
	s := &Store{}
	if err := json.Unmarshal(team, &s.Team); err != nil {
		return nil, fmt.Errorf("matchstats: team: %w", err)
	}
	if err := json.Unmarshal(players, &s.Players); err != nil {
		return nil, fmt.Errorf("matchstats: players: %w", err)
	}
	if err := json.Unmarshal(ball, &s.Ball); err != nil {
		return nil, fmt.Errorf("matchstats: ball: %w", err)
	}
	return s, nil
}

// TeamRecord computes wins, draws, losses and goal totals.
func (s *Store) TeamRecord() Record {
	var r Record
	possession := 0
	for _, m := range s.Team.Matches {
		r.Played++
		r.GoalsFor += m.Goals
		r.GoalsAgainst += m.Conceded
		possession += m.Possession
		switch {
		case m.Goals > m.Conceded:
			r.Wins++
		case m.Goals < m.Conceded:
			r.Losses++
		default:
			r.Draws++
		}
	}
	if r.Played > 0 {
		r.AvgPossession = float64(possession) / float64(r.Played)
	}
	return r
}

// TopScorers returns up to n players with at least one goal, most goals
// first. Ties keep squad order. n <= 0 returns all scorers.
func (s *Store) TopScorers(n int) []Player {
	var scorers []Player
	for _, p := range s.Players {
		if p.Goals > 0 {
			scorers = append(scorers, p)
		}
	}
	slices.SortStableFunc(scorers, func(a, b Player) int {
		return cmp.Compare(b.Goals, a.Goals)
	})
	if n > 0 && len(scorers) > n {
		scorers = scorers[:n]
	}
	return scorers
}

// PositionCounts returns how many players play each position.
func (s *Store) PositionCounts() map[string]int {
	counts := make(map[string]int)
	for _, p := range s.Players {
		counts[p.Position]++
	}
	return counts
}

// DetectionsPerFrame counts ball detections per frame, sorted by frame.
// Frames without detections are absent.
func (s *Store) DetectionsPerFrame() []FrameCount {
	counts := make(map[int]int)
	for _, d := range s.Ball {
		counts[d.Frame]++
	}

	out := make([]FrameCount, 0, len(counts))
	for frame, n := range counts {
		out = append(out, FrameCount{Frame: frame, Count: n})
	}
	slices.SortFunc(out, func(a, b FrameCount) int { return cmp.Compare(a.Frame, b.Frame) })
	return out
}

// MeanConfidence is the average ball detection confidence, 0 when empty.
func (s *Store) MeanConfidence() float64 {
	if len(s.Ball) == 0 {
		return 0
	}
	var sum float64
	for _, d := range s.Ball {
		sum += d.Confidence
	}
	return sum / float64(len(s.Ball))
}
