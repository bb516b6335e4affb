package domain

import "time"

// GameRecord is the archived outcome of an ended Session.
type GameRecord struct {
	GameID          string              `json:"gameId"`
	Player1ID       string              `json:"player1Id"`
	Player2ID       string              `json:"player2Id,omitempty"`
	WinnerID        string              `json:"winnerId,omitempty"`
	SecretWord      string              `json:"secretWord"`
	Guesses         map[string][]string `json:"guesses"`
	TotalGuesses    int                 `json:"totalGuesses"`
	DurationSeconds int                 `json:"durationSeconds"`
	CreatedAt       time.Time           `json:"createdAt"`
	FinishedAt      time.Time           `json:"finishedAt"`
}

// RecordOf summarises an ended Session.
func RecordOf(s *Session) GameRecord {
	rec := GameRecord{
		GameID:     s.ID,
		Player1ID:  s.Coordinator(),
		WinnerID:   s.Winner,
		SecretWord: s.SecretWord,
		Guesses:    make(map[string][]string, len(s.Guesses)),
		CreatedAt:  s.CreatedAt,
		FinishedAt: s.CreatedAt,
	}
	if len(s.Participants) > 1 {
		rec.Player2ID = s.Participants[1]
	}
	for id, gs := range s.Guesses {
		rec.Guesses[id] = append([]string(nil), gs...)
		rec.TotalGuesses += len(gs)
	}
	if s.EndedAt != nil {
		rec.FinishedAt = *s.EndedAt
	}
	rec.DurationSeconds = int(rec.FinishedAt.Sub(rec.CreatedAt).Seconds())
	return rec
}
