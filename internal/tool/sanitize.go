package tool

import (
	"regexp"
	"strings"
)

// secretSubstrings is the coarse, defense-in-depth heuristic used to flag
// parameter values that look like secrets (spec §9 open question: "known
// to be coarse... treat as a hint, not a guarantee").
var secretSubstrings = []string{"api_key", "apikey", "secret", "password", "passwd", "token", "-----begin"}

// promptInjectionPhrases flags attempts to override prior instructions that
// show up embedded in a tool-call parameter value — file content about to
// be written, or a fetched page being fed back into the conversation.
var promptInjectionPhrases = []string{
	"ignore previous instructions",
	"ignore all previous instructions",
	"disregard previous instructions",
	"disregard the above",
	"new instructions:",
	"system prompt:",
	"you are now",
}

// sqlInjectionPattern is a coarse keyword/metacharacter heuristic, not a
// parser, matching the "simple check" style used elsewhere for content
// sanitization.
var sqlInjectionPattern = regexp.MustCompile(`(?i)(union\s+select|drop\s+table|;\s*--|\bor\s+1\s*=\s*1\b|\bxp_cmdshell\b)`)

// detectSecrets reports whether v contains one of secretSubstrings.
func detectSecrets(v string) bool {
	lower := strings.ToLower(v)
	for _, s := range secretSubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// detectPromptInjection reports whether v contains a known instruction-
// override phrase.
func detectPromptInjection(v string) bool {
	lower := strings.ToLower(v)
	for _, p := range promptInjectionPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// detectSQLInjection reports whether v matches sqlInjectionPattern.
func detectSQLInjection(v string) bool {
	return sqlInjectionPattern.MatchString(v)
}

// mimeAllowed reports whether mime is acceptable under allowed. An empty
// mime or an empty allowlist both pass — the check only fires when a tool
// actually declares a MIME type against a non-empty configured list.
func mimeAllowed(mime string, allowed []string) bool {
	if mime == "" || len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(a, mime) {
			return true
		}
	}
	return false
}
