package source

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/jobfeed/internal/domain"
)

// ParseRelativeTime converts phrases like "3 days ago" or "45 minutes ago"
// into an absolute instant relative to now. Months count as 30 days.
func ParseRelativeTime(s string, now time.Time) (time.Time, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(s)))
	if len(fields) == 3 && fields[2] == "ago" {
		fields = fields[:2]
	}
	if len(fields) != 2 {
		return time.Time{}, fmt.Errorf("%w: malformed relative time %q", domain.ErrInvalidArgument, s)
	}

	value, err := strconv.Atoi(fields[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: malformed relative time %q", domain.ErrInvalidArgument, s)
	}

	switch strings.TrimSuffix(fields[1], "s") {
	case "day":
		return now.Add(-time.Duration(value) * 24 * time.Hour), nil
	case "hour":
		return now.Add(-time.Duration(value) * time.Hour), nil
	case "minute":
		return now.Add(-time.Duration(value) * time.Minute), nil
	case "second":
		return now.Add(-time.Duration(value) * time.Second), nil
	case "month":
		return now.Add(-time.Duration(value) * 30 * 24 * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported time unit %q", domain.ErrInvalidArgument, fields[1])
	}
}
