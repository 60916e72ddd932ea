package blocklist

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/navikt/appsec-orgbot/internal/models"
)

// Accepted ISO-8601 forms for the expiry column. Calendar and ordinal dates
// in extended or basic format, optionally followed by a time in either
// format ("T" or a space) down to the hour, and an optional "Z", ±hh:mm, ±hhmm or ±hh offset.
// Fractional seconds are accepted after the seconds field. Values without a
// zone are read as UTC.
var expiryLayouts = buildExpiryLayouts()

// weekDate matches ISO week dates, "2020-W01-3" or "2020W013", with an
// optional time remainder.
var weekDate = regexp.MustCompile(`^(\d{4})-?W(\d{2})(?:-?([1-7]))?([T ].*)?$`)

func buildExpiryLayouts() []string {
	dates := []string{"2006-01-02", "2006-002", "20060102", "2006002"}
	clocks := []string{"15:04:05", "15:04", "150405", "1504", "15"}
	zones := []string{"Z07:00", "Z0700", "Z07", ""}

	var layouts []string
	for _, date := range dates {
		for _, sep := range []string{"T", " "} {
			for _, clock := range clocks {
				for _, zone := range zones {
					layouts = append(layouts, date+sep+clock+zone)
				}
			}
		}
	}
	layouts = append(layouts, dates...)
	return append(layouts, "2006-01", "2006")
}

// ParseBlockLog reads the block list CSV. The first line is a header and is
// skipped together with empty lines. Each remaining line is
// "username,expires"; an empty or unparsable expiry means the block never
// expires. Rows are returned in file order.
func ParseBlockLog(content []byte) []models.BlockListEntry {
	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}

	entries := make([]models.BlockListEntry, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		username, expires, _ := strings.Cut(line, ",")
		username = models.NormalizeLogin(username)
		if username == "" {
			continue
		}
		expires, _, _ = strings.Cut(expires, ",")
		entries = append(entries, models.BlockListEntry{
			Username:  username,
			ExpiresAt: parseExpiry(expires),
		})
	}
	return entries
}

func parseExpiry(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if m := weekDate.FindStringSubmatch(value); m != nil {
		date, ok := weekToCalendar(m[1], m[2], m[3])
		if !ok {
			return time.Time{}
		}
		value = date + m[4]
	}
	for _, layout := range expiryLayouts {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t
		}
	}
	return time.Time{}
}

// weekToCalendar turns an ISO week date into "YYYY-MM-DD". Week 1 is the
// week holding January 4th; a missing weekday means Monday.
func weekToCalendar(year, week, weekday string) (string, bool) {
	y, _ := strconv.Atoi(year)
	w, _ := strconv.Atoi(week)
	d := 1
	if weekday != "" {
		d, _ = strconv.Atoi(weekday)
	}
	if w < 1 || w > 53 {
		return "", false
	}
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, time.UTC)
	monday := jan4.AddDate(0, 0, -((int(jan4.Weekday()) + 6) % 7))
	date := monday.AddDate(0, 0, (w-1)*7+d-1)
	// A week belongs to the year of its Thursday.
	if date.AddDate(0, 0, 4-d).Year() != y {
		return "", false
	}
	return date.Format("2006-01-02"), true
}

// DecideFate resolves each user's desired state. Later rows overwrite earlier
// ones for the same user. A user is unblocked only when the expiry is valid
// and strictly before now.
func DecideFate(entries []models.BlockListEntry, now time.Time) models.FateDecision {
	fate := make(models.FateDecision, len(entries))
	for _, entry := range entries {
		if entry.HasExpiry() && entry.ExpiresAt.Before(now) {
			fate[entry.Username] = models.FateUnblock
		} else {
			fate[entry.Username] = models.FateBlock
		}
	}
	return fate
}

// BuildChangeSet keeps the users whose desired state differs from the
// currently blocked set. Both lists follow the first appearance of each user
// in order.
func BuildChangeSet(fate models.FateDecision, order []string, blocked []string) models.ChangeSet {
	current := make(map[string]bool, len(blocked))
	for _, login := range blocked {
		current[models.NormalizeLogin(login)] = true
	}

	var changes models.ChangeSet
	seen := make(map[string]bool, len(fate))
	for _, username := range order {
		if seen[username] {
			continue
		}
		seen[username] = true

		switch fate[username] {
		case models.FateBlock:
			if !current[username] {
				changes.Block = append(changes.Block, username)
			}
		case models.FateUnblock:
			if current[username] {
				changes.Unblock = append(changes.Unblock, username)
			}
		}
	}
	return changes
}

// usernames lists each entry's username in file order, duplicates included.
func usernames(entries []models.BlockListEntry) []string {
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Username
	}
	return names
}
