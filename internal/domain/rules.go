package domain

import (
	"fmt"
	"strings"
)

// NormalizeGuess trims and lowercases raw input and checks it is exactly
// WordLength letters a-z.
func NormalizeGuess(raw string) (string, error) {
	guess := strings.ToLower(strings.TrimSpace(raw))
	if !IsWord(guess) {
		return "", fmt.Errorf("%w: %q must be %d letters a-z", ErrInvalidGuess, raw, WordLength)
	}
	return guess, nil
}

// IsWord reports whether w is exactly WordLength lowercase ASCII letters.
func IsWord(w string) bool {
	if len(w) != WordLength {
		return false
	}
	for i := 0; i < len(w); i++ {
		if w[i] < 'a' || w[i] > 'z' {
			return false
		}
	}
	return true
}

// Feedback classifies every letter of guess against word. A letter is
// correct when it matches the same position, present when it occurs anywhere
// else in word, absent otherwise. Repeated letters are not counted down.
func Feedback(guess, word string) []Tile {
	tiles := make([]Tile, len(guess))
	for i := 0; i < len(guess); i++ {
		switch {
		case i < len(word) && word[i] == guess[i]:
			tiles[i] = TileCorrect
		case strings.IndexByte(word, guess[i]) >= 0:
			tiles[i] = TilePresent
		default:
			tiles[i] = TileAbsent
		}
	}
	return tiles
}
