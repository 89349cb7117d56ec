package store

import (
	"database/sql"
	"fmt"
	"math"
	"math/bits"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	str2duration "github.com/xhit/go-str2duration/v2"
)

// driverName registers a sqlite3 driver whose connections carry the noir
// scalar functions. The compiled WHERE fragments produced by the expander
// depend on these.
const driverName = "noir_sqlite3"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("dist", dist, true); err != nil {
				return err
			}
			if err := conn.RegisterFunc("match", matchSensitive, true); err != nil {
				return err
			}
			if err := conn.RegisterFunc("imatch", matchInsensitive, true); err != nil {
				return err
			}
			if err := conn.RegisterFunc("recent", recentCutoff, true); err != nil {
				return err
			}
			return conn.RegisterFunc("recent", recentCompare, true)
		},
	})
}

// dist returns the Hamming distance between two 16-hex-digit values.
// Parse failures coerce to 0; a non-text argument yields u32 max so that
// distance-threshold queries never select such rows.
func dist(a, b any) int64 {
	sa, aok := textArg(a)
	sb, bok := textArg(b)
	if !aok || !bok {
		return math.MaxUint32
	}
	return int64(bits.OnesCount64(parseHash(sa) ^ parseHash(sb)))
}

func textArg(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

func parseHash(s string) uint64 {
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0
	}
	return n
}

// wildcards caches compiled patterns per call-site pattern text. The SQL
// engine re-evaluates the function per row with the same pattern, so the
// cache plays the role of statement aux data.
var wildcards sync.Map // pattern string -> *regexp.Regexp

func compileWildcard(pattern string) *regexp.Regexp {
	if v, ok := wildcards.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	var b strings.Builder
	b.WriteString(`(?s)\A`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`\z`)
	re := regexp.MustCompile(b.String())
	wildcards.Store(pattern, re)
	return re
}

// matchSensitive implements match(pattern, text): ? is any single
// character, * any run.
func matchSensitive(pattern, text string) bool {
	return compileWildcard(pattern).MatchString(text)
}

// matchInsensitive implements imatch(pattern, text).
func matchInsensitive(pattern, text string) bool {
	return compileWildcard(strings.ToLower(pattern)).MatchString(strings.ToLower(text))
}

// recentCutoff implements recent(duration): an RFC3339 UTC timestamp of
// now - duration, suitable for string comparison with stored timestamps.
func recentCutoff(duration string) (string, error) {
	d, err := parseHumanDuration(duration)
	if err != nil {
		return "", err
	}
	return FormatTime(time.Now().Add(-d)), nil
}

// recentCompare implements recent(value, duration): whether value is more
// recent than the cutoff.
func recentCompare(value, duration string) (bool, error) {
	cutoff, err := recentCutoff(duration)
	if err != nil {
		return false, err
	}
	return value > cutoff, nil
}

var durationWords = map[string]string{
	"second": "s", "seconds": "s", "sec": "s", "secs": "s",
	"minute": "m", "minutes": "m", "min": "m", "mins": "m",
	"hour": "h", "hours": "h",
	"day": "d", "days": "d",
	"week": "w", "weeks": "w",
}

// parseHumanDuration accepts compact forms ("30m", "2d12h") and worded
// forms ("2 days", "3 hours 30 minutes").
func parseHumanDuration(s string) (time.Duration, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for word, unit := range durationWords {
		normalized = regexp.MustCompile(`(\d)\s*`+word+`\b`).ReplaceAllString(normalized, "${1}"+unit)
	}
	normalized = strings.ReplaceAll(normalized, " ", "")
	d, err := str2duration.ParseDuration(normalized)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
