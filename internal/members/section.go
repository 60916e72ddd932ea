package members

import (
	"regexp"
	"strings"

	"github.com/navikt/appsec-orgbot/internal/ignorable"
	"github.com/navikt/appsec-orgbot/internal/models"
)

const endMarker = "<!-- team -->"

var (
	startMarker = regexp.MustCompile(`<!-- team:(\w\S*?)(?:\s|-->)`)
	// A mention is @login not preceded by a word character, an @ or a dot.
	// @org/team references are reported with the slash group set.
	mentionPattern = regexp.MustCompile(`(?:^|[^\w@.])@([A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)(/[\w.-]+)?`)
	readmePattern  = regexp.MustCompile(`(?i)^readme\.md$`)
)

// ParseTeamSection extracts the team name and the mentioned users between
// "<!-- team:NAME -->" and "<!-- team -->". Mentions are lower-cased and
// deduplicated in order of appearance. Either marker missing yields
// ignorable.ErrSectionNotFound.
func ParseTeamSection(content string) (models.TeamSpec, error) {
	loc := startMarker.FindStringSubmatchIndex(content)
	if loc == nil {
		return models.TeamSpec{}, ignorable.ErrSectionNotFound
	}
	start := loc[0]
	name := content[loc[2]:loc[3]]

	end := strings.Index(content[start:], endMarker)
	if end == -1 {
		return models.TeamSpec{}, ignorable.ErrSectionNotFound
	}

	return models.TeamSpec{
		Name:     name,
		Mentions: mentions(content[start : start+end]),
	}, nil
}

func mentions(section string) []string {
	seen := make(map[string]bool)
	users := []string{}
	for _, match := range mentionPattern.FindAllStringSubmatch(section, -1) {
		if match[2] != "" {
			continue
		}
		login := models.NormalizeLogin(match[1])
		if seen[login] {
			continue
		}
		seen[login] = true
		users = append(users, login)
	}
	return users
}

// IsRootReadme reports whether filename is a README.md at the repository
// root, in any letter case.
func IsRootReadme(filename string) bool {
	return readmePattern.MatchString(filename)
}
