// Package words supplies secret words for new sessions.
package words

import (
	"bufio"
	"context"
	"crypto/rand"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"github.com/iamasit07/wordle-duel/backend/internal/domain"
	"github.com/iamasit07/wordle-duel/backend/internal/logging"
)

// Source yields one fresh secret word per call. Failures wrap
// domain.ErrSourceUnavailable.
type Source interface {
	SecretWord(ctx context.Context) (string, error)
}

//go:embed answers.txt
var embeddedAnswers string

// ListSource picks uniformly from a fixed list.
type ListSource struct {
	words []string
}

// NewEmbeddedSource uses the answer list compiled into the binary.
func NewEmbeddedSource() *ListSource {
	src, _ := NewListSource(parseLines(embeddedAnswers))
	return src
}

// NewListSource keeps only valid words from list.
func NewListSource(list []string) (*ListSource, error) {
	var words []string
	for _, w := range list {
		w = strings.ToLower(strings.TrimSpace(w))
		if domain.IsWord(w) {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil, errors.New("words: list has no valid entries")
	}
	return &ListSource{words: words}, nil
}

func parseLines(s string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	return out
}

func (l *ListSource) SecretWord(ctx context.Context) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(l.words))))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	return l.words[n.Int64()], nil
}

// Len is the number of candidate words.
func (l *ListSource) Len() int { return len(l.words) }

// HTTPSource asks a random-word endpoint that answers with a JSON array of
// strings, e.g. ["apple"].
type HTTPSource struct {
	url    string
	client *http.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{url: url, client: &http.Client{Timeout: timeout}}
}

func (h *HTTPSource) SecretWord(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: word api returned %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}

	var body []string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode word api response: %v", domain.ErrSourceUnavailable, err)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("%w: word api returned no words", domain.ErrSourceUnavailable)
	}
	word := strings.ToLower(strings.TrimSpace(body[0]))
	if !domain.IsWord(word) {
		return "", fmt.Errorf("%w: word api returned %q", domain.ErrSourceUnavailable, body[0])
	}
	return word, nil
}

// Retrying retries a Source with exponential backoff until maxElapsed.
type Retrying struct {
	next       Source
	maxElapsed time.Duration
	log        zerolog.Logger
}

func NewRetrying(next Source, maxElapsed time.Duration) *Retrying {
	return &Retrying{next: next, maxElapsed: maxElapsed, log: logging.Component("words")}
}

func (r *Retrying) SecretWord(ctx context.Context) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second

	word, err := backoff.Retry(ctx, func() (string, error) {
		return r.next.SecretWord(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(r.maxElapsed),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.log.Warn().Err(err).Dur("retry_in", wait).Msg("word source failed")
		}),
	)
	if err != nil {
		if !errors.Is(err, domain.ErrSourceUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		return "", err
	}
	return word, nil
}

// Fallback answers from secondary whenever primary fails.
type Fallback struct {
	primary   Source
	secondary Source
	log       zerolog.Logger
}

func NewFallback(primary, secondary Source) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, log: logging.Component("words")}
}

func (f *Fallback) SecretWord(ctx context.Context) (string, error) {
	word, err := f.primary.SecretWord(ctx)
	if err == nil {
		return word, nil
	}
	if ctx.Err() != nil {
		return "", err
	}
	f.log.Warn().Err(err).Msg("primary word source unavailable, using fallback")
	return f.secondary.SecretWord(ctx)
}
