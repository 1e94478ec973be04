// Package columns maps vendor CSV headers onto logical metrics for the main
// station or one auxiliary sensor channel.
package columns

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/lox/wxarchive/internal/units"
)

// ErrColumnNotFound means a required metric has no column in the requested
// scope. It fails that query only.
var ErrColumnNotFound = errors.New("column not found")

var channelPrefix = regexp.MustCompile(`(?i)^ch(\d+)[\s_:-]*`)

// Scope is the main station (Channel 0) or one auxiliary channel.
type Scope struct {
	Channel int
}

var Station = Scope{}

func Channel(n int) Scope { return Scope{Channel: n} }

// ParseScope accepts "", "station", "main", "3", "ch3" or "CH 3".
func ParseScope(s string) (Scope, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "station", "main":
		return Station, nil
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "ch"))
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return Scope{}, fmt.Errorf("invalid channel %q", s)
	}
	return Channel(n), nil
}

func (s Scope) IsStation() bool { return s.Channel == 0 }

func (s Scope) String() string {
	if s.IsStation() {
		return "station"
	}
	return fmt.Sprintf("ch%d", s.Channel)
}

// Descriptor is a discovered column tagged with its metric and source unit.
type Descriptor struct {
	Name   string
	Metric Metric
	Unit   units.Unit
}

// Conversion returns the transform into canonical units.
func (d Descriptor) Conversion() units.Conversion {
	return d.Unit.ToCanonical()
}

// NeedsNormalization reports whether values must be converted before they are
// averaged. Speed columns arrive in mph or km/h depending on the console.
func (d Descriptor) NeedsNormalization() bool {
	return d.Metric == Wind || d.Metric == Gust
}

// Hint is the discovery result for one metric. Primary is the first match in
// header order and is always Candidates[0].
type Hint struct {
	Primary    string
	Candidates []Descriptor
}

func (h Hint) Found() bool { return h.Primary != "" }

func (h Hint) Names() []string {
	names := make([]string, len(h.Candidates))
	for i, c := range h.Candidates {
		names[i] = c.Name
	}
	return names
}

// Hints holds discovery results per metric for one scope.
type Hints struct {
	Scope   Scope
	Metrics map[Metric]Hint
}

func (h Hints) Get(m Metric) Hint {
	return h.Metrics[m]
}

// Require returns ErrColumnNotFound for the first metric with no match.
func (h Hints) Require(metrics ...Metric) error {
	for _, m := range metrics {
		if !h.Get(m).Found() {
			return fmt.Errorf("%w: no %s column for %s", ErrColumnNotFound, m, h.Scope)
		}
	}
	return nil
}

// Discover classifies header names for a scope. Every candidate is a literal
// member of names; duplicates are suppressed and header order is kept.
func Discover(names []string, scope Scope) Hints {
	hints := Hints{Scope: scope, Metrics: make(map[Metric]Hint)}
	seen := make(map[Metric]map[string]bool)

	for _, name := range names {
		label, ok := inScope(name, scope)
		if !ok {
			continue
		}
		folded := fold(label)
		for _, entry := range Vocabulary {
			if !entry.matches(folded) {
				continue
			}
			if seen[entry.Metric] == nil {
				seen[entry.Metric] = make(map[string]bool)
			}
			if seen[entry.Metric][name] {
				continue
			}
			seen[entry.Metric][name] = true

			h := hints.Metrics[entry.Metric]
			if h.Primary == "" {
				h.Primary = name
			}
			h.Candidates = append(h.Candidates, Descriptor{
				Name:   name,
				Metric: entry.Metric,
				Unit:   inferUnit(entry.Metric, name),
			})
			hints.Metrics[entry.Metric] = h
		}
	}
	return hints
}

// SpeedConversions returns the canonical-unit conversion for every wind or
// gust column in names, regardless of scope. Columns already in km/h or of
// unknown unit are left out.
func SpeedConversions(names []string) map[string]units.Conversion {
	out := make(map[string]units.Conversion)
	for _, name := range names {
		label := name
		if loc := channelPrefix.FindStringIndex(name); loc != nil {
			label = name[loc[1]:]
		}
		folded := fold(label)
		for _, entry := range Vocabulary {
			if entry.Metric != Wind && entry.Metric != Gust {
				continue
			}
			if !entry.matches(folded) {
				continue
			}
			if c := inferUnit(entry.Metric, name).ToCanonical(); !c.IsIdentity() {
				out[name] = c
			}
			break
		}
	}
	return out
}

// ChannelOf returns the channel number a header is prefixed with, or 0.
func ChannelOf(name string) int {
	m := channelPrefix.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// inScope strips the channel prefix for channel scopes and filters out other
// channels and indoor sensors. It returns the label to match against.
func inScope(name string, scope Scope) (string, bool) {
	loc := channelPrefix.FindStringSubmatchIndex(name)
	if scope.IsStation() {
		if loc != nil {
			return "", false
		}
		folded := fold(name)
		for _, marker := range indoorMarkers {
			if strings.Contains(folded, marker) {
				return "", false
			}
		}
		return name, true
	}
	if loc == nil {
		return "", false
	}
	n, err := strconv.Atoi(name[loc[2]:loc[3]])
	if err != nil || n != scope.Channel {
		return "", false
	}
	return name[loc[1]:], true
}

func (e Entry) matches(folded string) bool {
	for _, ex := range e.Exclude {
		if strings.Contains(folded, ex) {
			return false
		}
	}
	for _, stem := range e.Stems {
		if strings.Contains(folded, stem) {
			return true
		}
	}
	return false
}

// fold lower-cases s and drops everything but letters and digits.
func fold(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

var compactKey = regexp.MustCompile(`^[a-z0-9]+$`)

// inferUnit reads the unit from a header label such as "Temperature(℃)",
// "Wind Speed (mph)" or a compact key like "tempf" or "dailyrainin".
func inferUnit(m Metric, name string) units.Unit {
	lower := strings.ToLower(strings.TrimSpace(name))
	compact := compactKey.MatchString(lower)

	switch m {
	case Temperature, DewPoint, FeelsLike:
		switch {
		case strings.Contains(lower, "℉"), strings.Contains(lower, "°f"), strings.Contains(lower, "(f)"):
			return units.Fahrenheit
		case strings.Contains(lower, "℃"), strings.Contains(lower, "°c"), strings.Contains(lower, "(c)"):
			return units.Celsius
		case compact && strings.HasSuffix(lower, "f"):
			return units.Fahrenheit
		case compact && strings.HasSuffix(lower, "c"):
			return units.Celsius
		}
	case Wind, Gust:
		switch {
		case strings.Contains(lower, "km/h"), strings.Contains(lower, "kmh"), strings.Contains(lower, "kph"):
			return units.KilometresPerHour
		case strings.Contains(lower, "mph"):
			return units.MilesPerHour
		case strings.Contains(lower, "m/s"), compact && strings.HasSuffix(lower, "ms"):
			return units.MetresPerSecond
		}
	case RainDaily, RainHourly, Rain:
		switch {
		case strings.Contains(lower, "mm"):
			return units.Millimetres
		case strings.Contains(lower, "(in"), strings.Contains(lower, "inch"), compact && strings.HasSuffix(lower, "in"):
			return units.Inches
		}
	}
	return units.Unknown
}
