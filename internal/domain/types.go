package domain

const (
	WordLength      = 5
	MaxParticipants = 2
)

// Status is the lifecycle state of a Session. It only ever moves forward.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in-progress"
	StatusEnded      Status = "ended"
)

func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 1
	case StatusInProgress:
		return 2
	case StatusEnded:
		return 3
	}
	return 0
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s.rank() > 0
}

// CanAdvanceTo reports whether moving from s to next keeps the status
// sequence non-decreasing.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.Valid() && next.rank() >= s.rank()
}

// Tile is the per-letter classification of a guess against the secret word.
type Tile string

const (
	TileCorrect Tile = "correct"
	TilePresent Tile = "present"
	TileAbsent  Tile = "absent"
)

// basic errors surfaced by the session services
type Error string

func (e Error) Error() string {
	return string(e)
}

const (
	ErrInvalidState      Error = "invalid-state"
	ErrNotParticipant    Error = "not-participant"
	ErrNotFound          Error = "not-found"
	ErrRaceLost          Error = "race-lost"
	ErrSourceUnavailable Error = "source-unavailable"
	ErrInvalidGuess      Error = "invalid-guess"
	ErrSessionFull       Error = "session-full"
	ErrGuessLimit        Error = "guess-limit"

	// ErrUnchanged is returned by an update mutator that found nothing to do.
	// Stores treat it as success and skip the write.
	ErrUnchanged Error = "unchanged"
)
