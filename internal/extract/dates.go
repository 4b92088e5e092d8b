package extract

import (
	"fmt"
	"strings"
	"time"
)

// absoluteLayout matches the origin's full timestamp rendering,
// e.g. "January 05, 2024, 10:26:56 AM".
const absoluteLayout = "January 02, 2006, 03:04:05 PM"

// resolveDate turns an origin timestamp into an absolute time. The origin
// renders today's timestamps as "Today at HH:MM:SS" with no date; those are
// resolved against ref, the single reference timestamp captured once from
// the page itself. Wall-clock "now" is never consulted, so a batch that
// spans midnight resolves consistently.
func resolveDate(raw string, ref time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if rest, ok := strings.CutPrefix(raw, "Today at "); ok {
		clock, err := time.Parse("03:04:05 PM", strings.TrimSpace(rest))
		if err != nil {
			return time.Time{}, fmt.Errorf("unparseable relative date %q: %w", raw, err)
		}
		return time.Date(ref.Year(), ref.Month(), ref.Day(),
			clock.Hour(), clock.Minute(), clock.Second(), 0, ref.Location()), nil
	}

	t, err := time.Parse(absoluteLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q: %w", raw, err)
	}
	return t, nil
}
