// Package ticker parses Kalshi-style market tickers. A full ticker reads
// {series}-{event}-{market}, e.g. KXNBA-25DEC25-LAL; event-level tickers
// omit the trailing market segment.
package ticker

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// tickerRegex matches: {SERIES}-{EVENT}[-{MARKET}]
// Example: KXHIGHNY-25AUG31-B87.5
var tickerRegex = regexp.MustCompile(
	`^([A-Z][A-Z0-9]*)-([A-Z0-9]+)(?:-([A-Z0-9.]+))?$`,
)

// ErrInvalidTicker is returned for strings that do not look like a ticker.
var ErrInvalidTicker = errors.New("ticker: invalid ticker format")

// Ticker is a parsed market identifier.
type Ticker struct {
	Raw    string `json:"raw"`
	Series string `json:"series"`
	Event  string `json:"event"`
	Market string `json:"market,omitempty"`

	// Expiry is the event date when the event segment encodes one
	// (YYMONDD, e.g. 25DEC25); zero otherwise.
	Expiry time.Time `json:"expiry,omitempty"`
}

// Parse validates and decomposes a ticker string. Input is upcased first,
// so user-typed tickers tolerate lowercase.
func Parse(raw string) (*Ticker, error) {
	normalized := Normalize(raw)
	matches := tickerRegex.FindStringSubmatch(normalized)
	if matches == nil {
		return nil, fmt.Errorf("%w: %q (expected SERIES-EVENT[-MARKET])", ErrInvalidTicker, raw)
	}

	t := &Ticker{
		Raw:    normalized,
		Series: matches[1],
		Event:  matches[2],
		Market: matches[3],
	}

	// Event segments usually open with the event date.
	if len(t.Event) >= 7 {
		if expiry, err := time.Parse("06Jan02", t.Event[:7]); err == nil {
			t.Expiry = expiry
		}
	}
	return t, nil
}

// Normalize upcases and trims a ticker string without validating it.
func Normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// EventKey returns the first segments dash-separated parts of a ticker:
// the identifier of the event the market belongs to. Markets sharing an
// event key settle off the same real-world outcome.
func EventKey(ticker string, segments int) string {
	if segments < 1 {
		segments = 1
	}
	parts := strings.Split(Normalize(ticker), "-")
	if segments >= len(parts) {
		return Normalize(ticker)
	}
	return strings.Join(parts[:segments], "-")
}
