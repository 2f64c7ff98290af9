package engine

import (
	"testing"
	"time"

	"propflow/models"
)

// testRecords returns the shared query-engine dataset: fourteen records
// across all five sports, shaped like one ingestion cycle's output. The set
// bakes in the cases the engine has to get right: a confidence tie (Tatum
// and Jokic at 85), two records sharing a game time (both sides of the
// KC/BUF game), duplicate lines (1.5 and 4.5), a team code appearing across
// three sports (BOS), and a game that falls late evening US time but on the
// next UTC calendar day (James at 03:00Z).
func testRecords() []models.PredictionRecord {
	return []models.PredictionRecord{
		{
			ID: "curry", Player: "Stephen Curry", Team: "GSW", Opponent: "LAL",
			Sport: models.SportNBA, Stat: "points",
			GameTime: time.Date(2025, 1, 15, 2, 30, 0, 0, time.UTC),
			Line:     28.5, PredictedValue: 31.2, OverProbability: 0.78,
			ConfidenceScore: 92, Confidence: models.ConfidenceVeryHigh,
			PredictionRange: [2]float64{27.9, 34.5},
			TopFactors:      []string{"averaging 33.1 points over last 5", "opponent ranks 27th defending guards"},
		},
		{
			ID: "tatum", Player: "Jayson Tatum", Team: "BOS", Opponent: "MIA",
			Sport: models.SportNBA, Stat: "points",
			GameTime: time.Date(2025, 1, 15, 0, 10, 0, 0, time.UTC),
			Line:     27.5, PredictedValue: 30.1, OverProbability: 0.71,
			ConfidenceScore: 85, Confidence: models.ConfidenceHigh,
			PredictionRange: [2]float64{26.4, 33.8},
			TopFactors:      []string{"usage rate up with second star out", "30+ in 4 straight home games"},
		},
		{
			ID: "jokic", Player: "Nikola Jokic", Team: "DEN", Opponent: "PHX",
			Sport: models.SportNBA, Stat: "rebounds",
			GameTime: time.Date(2025, 1, 15, 2, 0, 0, 0, time.UTC),
			Line:     12.5, PredictedValue: 14.2, OverProbability: 0.69,
			ConfidenceScore: 85, Confidence: models.ConfidenceHigh,
			PredictionRange: [2]float64{11.9, 16.5},
			TopFactors:      []string{"PHX bottom five in rebound rate", "42 minutes projected"},
		},
		{
			ID: "james", Player: "LeBron James", Team: "LAL", Opponent: "BOS",
			Sport: models.SportNBA, Stat: "assists",
			GameTime: time.Date(2025, 1, 16, 3, 0, 0, 0, time.UTC),
			Line:     8.5, PredictedValue: 9.6, OverProbability: 0.63,
			ConfidenceScore: 74, Confidence: models.ConfidenceModerate,
			PredictionRange: [2]float64{7.8, 11.4},
			TopFactors:      []string{"assist rate climbs vs switching defenses", "pace-up matchup"},
		},
		{
			ID: "antetokounmpo", Player: "Giannis Antetokounmpo", Team: "MIL", Opponent: "CHI",
			Sport: models.SportNBA, Stat: "points",
			GameTime: time.Date(2025, 1, 15, 1, 0, 0, 0, time.UTC),
			Line:     31.5, PredictedValue: 33.0, OverProbability: 0.60,
			ConfidenceScore: 67, Confidence: models.ConfidenceModerate,
			PredictionRange: [2]float64{28.7, 37.3},
			TopFactors:      []string{"CHI allows most paint points", "minutes restriction lifted"},
		},
		{
			ID: "doncic", Player: "Luka Doncic", Team: "DAL", Opponent: "NYK",
			Sport: models.SportNBA, Stat: "points",
			GameTime: time.Date(2025, 1, 16, 1, 30, 0, 0, time.UTC),
			Line:     29.5, PredictedValue: 28.1, OverProbability: 0.44,
			ConfidenceScore: 55, Confidence: models.ConfidenceModerate,
			PredictionRange: [2]float64{24.6, 31.6},
			TopFactors:      []string{"second night of back-to-back", "NYK top three in defensive rating"},
		},
		{
			ID: "mahomes", Player: "Patrick Mahomes", Team: "KC", Opponent: "BUF",
			Sport: models.SportNFL, Stat: "passing_yards",
			GameTime: time.Date(2025, 1, 19, 20, 0, 0, 0, time.UTC),
			Line:     275.5, PredictedValue: 301.4, OverProbability: 0.72,
			ConfidenceScore: 83, Confidence: models.ConfidenceHigh,
			PredictionRange: [2]float64{268.0, 334.8},
			TopFactors:      []string{"averaging 295 passing yards at home", "BUF secondary missing two starters"},
		},
		{
			ID: "allen", Player: "Josh Allen", Team: "BUF", Opponent: "KC",
			Sport: models.SportNFL, Stat: "passing_yards",
			GameTime: time.Date(2025, 1, 19, 20, 0, 0, 0, time.UTC),
			Line:     250.5, PredictedValue: 238.7, OverProbability: 0.41,
			ConfidenceScore: 71, Confidence: models.ConfidenceModerate,
			PredictionRange: [2]float64{210.2, 267.2},
			TopFactors:      []string{"KC allows fewest yards per attempt", "wind forecast near 20mph"},
		},
		{
			ID: "hill", Player: "Tyreek Hill", Team: "MIA", Opponent: "NE",
			Sport: models.SportNFL, Stat: "receiving_yards",
			GameTime: time.Date(2025, 1, 12, 18, 0, 0, 0, time.UTC),
			Line:     80.5, PredictedValue: 77.9, OverProbability: 0.47,
			ConfidenceScore: 49, Confidence: models.ConfidenceLow,
			PredictionRange: [2]float64{58.3, 97.5},
			TopFactors:      []string{"shadow coverage expected", "target share down three straight weeks"},
		},
		{
			ID: "ohtani", Player: "Shohei Ohtani", Team: "LAD", Opponent: "SF",
			Sport: models.SportMLB, Stat: "total_bases",
			GameTime: time.Date(2025, 4, 2, 2, 10, 0, 0, time.UTC),
			Line:     1.5, PredictedValue: 2.1, OverProbability: 0.66,
			ConfidenceScore: 77, Confidence: models.ConfidenceHigh,
			PredictionRange: [2]float64{1.2, 3.0},
			TopFactors:      []string{"opposing starter allows 1.8 HR/9", "hitting lefties at a .340 clip"},
		},
		{
			ID: "devers", Player: "Rafael Devers", Team: "BOS", Opponent: "NYY",
			Sport: models.SportMLB, Stat: "hits",
			GameTime: time.Date(2025, 4, 2, 23, 10, 0, 0, time.UTC),
			Line:     1.5, PredictedValue: 1.3, OverProbability: 0.45,
			ConfidenceScore: 62, Confidence: models.ConfidenceModerate,
			PredictionRange: [2]float64{0.8, 1.8},
			TopFactors:      []string{"day game after night game", "tough sinker-heavy matchup"},
		},
		{
			ID: "mcdavid", Player: "Connor McDavid", Team: "EDM", Opponent: "TOR",
			Sport: models.SportNHL, Stat: "shots_on_goal",
			GameTime: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
			Line:     4.5, PredictedValue: 5.3, OverProbability: 0.68,
			ConfidenceScore: 79, Confidence: models.ConfidenceHigh,
			PredictionRange: [2]float64{3.9, 6.7},
			TopFactors:      []string{"TOR concedes most high-danger chances", "power play clicking at 31%"},
		},
		{
			ID: "pastrnak", Player: "David Pastrnak", Team: "BOS", Opponent: "MTL",
			Sport: models.SportNHL, Stat: "shots_on_goal",
			GameTime: time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC),
			Line:     4.5, PredictedValue: 5.0, OverProbability: 0.64,
			ConfidenceScore: 76, Confidence: models.ConfidenceHigh,
			PredictionRange: [2]float64{3.6, 6.4},
			TopFactors:      []string{"12 shots over last two games", "MTL penalty kill at 72%"},
		},
		{
			ID: "haaland", Player: "Erling Haaland", Team: "MCI", Opponent: "ARS",
			Sport: models.SportSoccer, Stat: "shots",
			GameTime: time.Date(2025, 1, 18, 15, 0, 0, 0, time.UTC),
			Line:     3.5, PredictedValue: 4.2, OverProbability: 0.61,
			ConfidenceScore: 58, Confidence: models.ConfidenceModerate,
			PredictionRange: [2]float64{2.9, 5.5},
			TopFactors:      []string{"ARS missing first-choice center backs", "8 shots across last two fixtures"},
		},
	}
}

func testSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Version:     "test-version-1",
		PublishedAt: time.Date(2025, 1, 14, 12, 0, 0, 0, time.UTC),
		Records:     testRecords(),
	}
}

func playerOrder(records []models.PredictionRecord) []string {
	players := make([]string, len(records))
	for i, rec := range records {
		players[i] = rec.Player
	}
	return players
}

// assertPlayers fails the test unless got holds exactly the named players in
// the given order.
func assertPlayers(t *testing.T, got []models.PredictionRecord, want []string) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("expected %d records, got %d: %v", len(want), len(got), playerOrder(got))
	}
	for i, rec := range got {
		if rec.Player != want[i] {
			t.Fatalf("position %d: expected %q, got %q (full order: %v)", i, want[i], rec.Player, playerOrder(got))
		}
	}
}
