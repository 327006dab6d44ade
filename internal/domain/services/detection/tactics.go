package detection

import (
	"regexp"
	"strings"
)

// tactic is a named manipulation technique recognized in a message.
// Words are matched by substring on lowercased text, so "now" also fires on
// "know" and "legal" on "legally".
type tactic struct {
	tag   string
	words []string
}

var tactics = []tactic{
	{"urgency tactics", []string{"urgent", "immediately", "now"}},
	{"fear tactics (account threat)", []string{"blocked", "suspended", "deactivated"}},
	{"reward bait", []string{"prize", "winner", "refund"}},
	{"legal threats", []string{"legal", "police", "arrest"}},
	{"credential phishing", []string{"otp", "cvv", "pin", "password"}},
}

var linkPattern = regexp.MustCompile(`(?i)https?://`)

// AnalyzeTactics returns the tactic tags that fire on text joined by ", ",
// or "" when none do.
func AnalyzeTactics(text string) string {
	lower := strings.ToLower(text)

	var tags []string
	for _, t := range tactics {
		for _, w := range t.words {
			if strings.Contains(lower, w) {
				tags = append(tags, t.tag)
				break
			}
		}
	}
	if linkPattern.MatchString(text) {
		tags = append(tags, "phishing link")
	}
	return strings.Join(tags, ", ")
}
