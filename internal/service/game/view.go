package game

import (
	"context"
	"time"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
)

type GuessView struct {
	// Word is empty while the letters are hidden from the viewer.
	Word  string        `json:"word,omitempty"`
	Tiles []domain.Tile `json:"tiles"`
}

type PlayerView struct {
	ID             string      `json:"id"`
	DisplayName    string      `json:"displayName"`
	Guesses        []GuessView `json:"guesses"`
	RematchConsent bool        `json:"rematchConsent"`
	HandoffAck     bool        `json:"handoffAck"`
	LeftToMenu     bool        `json:"leftToMenu"`
}

// View is what one viewer may see of a Session. The secret word and the
// opponent's letters stay hidden until the Session has ended.
type View struct {
	ID          string        `json:"id"`
	Status      domain.Status `json:"status"`
	Players     []PlayerView  `json:"players"`
	Winner      string        `json:"winner,omitempty"`
	WinnerName  string        `json:"winnerName,omitempty"`
	Draw        bool          `json:"draw"`
	SecretWord  string        `json:"secretWord,omitempty"`
	SuccessorID string        `json:"successorId,omitempty"`
	MaxGuesses  int           `json:"maxGuesses,omitempty"`
	Viewer      string        `json:"viewer"`
	Participant bool          `json:"participant"`
	CreatedAt   time.Time     `json:"createdAt"`
	EndedAt     *time.Time    `json:"endedAt,omitempty"`
	Version     int64         `json:"version"`
}

// Summary is one row of the live games list.
type Summary struct {
	ID         string    `json:"id"`
	Players    []string  `json:"players"`
	GuessCount int       `json:"guessCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ViewOf renders s for viewer.
func (svc *Service) ViewOf(ctx context.Context, s *domain.Session, viewer string) *View {
	ended := s.Status == domain.StatusEnded
	v := &View{
		ID:          s.ID,
		Status:      s.Status,
		Winner:      s.Winner,
		Draw:        s.IsDraw(),
		SuccessorID: s.SuccessorID,
		MaxGuesses:  svc.maxGuesses,
		Viewer:      viewer,
		Participant: s.IsParticipant(viewer),
		CreatedAt:   s.CreatedAt,
		EndedAt:     s.EndedAt,
		Version:     s.Version,
	}
	if ended {
		v.SecretWord = s.SecretWord
	}

	for _, id := range s.Participants {
		p := PlayerView{
			ID:             id,
			DisplayName:    svc.names.DisplayName(ctx, id),
			Guesses:        make([]GuessView, 0, len(s.Guesses[id])),
			RematchConsent: s.RematchConsent[id],
			HandoffAck:     s.HandoffAck[id],
			LeftToMenu:     s.LeftToMenu[id],
		}
		showLetters := ended || id == viewer
		for _, g := range s.Guesses[id] {
			gv := GuessView{Tiles: domain.Feedback(g, s.SecretWord)}
			if showLetters {
				gv.Word = g
			}
			p.Guesses = append(p.Guesses, gv)
		}
		if id == s.Winner {
			v.WinnerName = p.DisplayName
		}
		v.Players = append(v.Players, p)
	}
	return v
}
