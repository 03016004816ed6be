// Package expiry maps duration labels to absolute expiry instants.
package expiry

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Lifetime is the label that never expires.
const Lifetime = "lifetime"

var ErrInvalidDuration = errors.New("invalid duration")

var offsets = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"15d": 15 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Expiry is an absolute instant, or Never when zero.
type Expiry struct {
	at time.Time
}

func Never() Expiry { return Expiry{} }

func At(t time.Time) Expiry { return Expiry{at: t} }

func (e Expiry) IsNever() bool { return e.at.IsZero() }

// Time returns the instant; the zero time for Never.
func (e Expiry) Time() time.Time { return e.at }

// Passed reports whether now is strictly after the expiry instant.
func (e Expiry) Passed(now time.Time) bool {
	return !e.IsNever() && now.After(e.at)
}

func (e Expiry) String() string {
	if e.IsNever() {
		return Lifetime
	}
	return e.at.UTC().Format(time.RFC3339)
}

// MarshalJSON encodes Never as null and instants as Unix seconds with up to
// nine fractional digits, so an instant reloads exactly.
func (e Expiry) MarshalJSON() ([]byte, error) {
	if e.IsNever() {
		return []byte("null"), nil
	}
	out := strconv.AppendInt(nil, e.at.Unix(), 10)
	if ns := e.at.Nanosecond(); ns != 0 {
		frac := strings.TrimRight(fmt.Sprintf("%09d", ns), "0")
		out = append(append(out, '.'), frac...)
	}
	return out, nil
}

func (e *Expiry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*e = Never()
		return nil
	}
	t, err := parseUnix(string(data))
	if err != nil {
		return fmt.Errorf("decode expiry %q: %w", data, err)
	}
	*e = At(t)
	return nil
}

// parseUnix reads decimal Unix seconds without going through float64 when
// the value is plain digits, keeping nanosecond precision.
func parseUnix(raw string) (time.Time, error) {
	if strings.ContainsAny(raw, "eE") {
		secs, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return time.Time{}, err
		}
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(math.Round(frac*1e9))), nil
	}
	whole, frac, _ := strings.Cut(raw, ".")
	secs, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	if frac == "" {
		return time.Unix(secs, 0), nil
	}
	if len(frac) > 9 {
		frac = frac[:9]
	}
	ns, err := strconv.ParseUint(frac+strings.Repeat("0", 9-len(frac)), 10, 32)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, int64(ns)), nil
}

// Resolve maps a label to an expiry measured from now.
func Resolve(label string, now time.Time) (Expiry, error) {
	if label == Lifetime {
		return Never(), nil
	}
	d, ok := offsets[label]
	if !ok {
		return Expiry{}, fmt.Errorf("%w: %q", ErrInvalidDuration, label)
	}
	return At(now.Add(d)), nil
}

// Labels lists the accepted labels, shortest first, lifetime last.
func Labels() []string {
	out := make([]string, 0, len(offsets)+1)
	for l := range offsets {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return offsets[out[i]] < offsets[out[j]] })
	return append(out, Lifetime)
}
