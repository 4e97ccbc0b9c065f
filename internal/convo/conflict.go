package convo

import (
	"regexp"
	"strings"
)

var (
	codeFencePattern  = regexp.MustCompile("(?s)```.*?```")
	inlineCodePattern = regexp.MustCompile("`[^`]*`")
	quotedPattern     = regexp.MustCompile(`"[^"]*"|'[^']*'`)
)

var consensusKeywords = []string{"consensus", "agreement reached", "we agree", "aligned"}

var conflictKeywords = []string{"disagree", "blocker", "conflict", "reject"}

var conflictPhrases = []string{"cannot agree", "cannot accept", "cannot support", "cannot proceed", "cannot endorse"}

// detectConsensus reports whether the latest turn signals consensus,
// either via an already-set metadata flag or a keyword match in its
// response text.
func (m *Manager) detectConsensus(conversation []DiscussionTurn) bool {
	if len(conversation) == 0 {
		return false
	}
	latest := conversation[len(conversation)-1]
	if v, _ := latest.Metadata["consensus"].(bool); v {
		return true
	}
	response := strings.ToLower(latest.Response)
	for _, kw := range consensusKeywords {
		if strings.Contains(response, kw) {
			return true
		}
	}
	return false
}

// detectConflict reports whether the latest turn, compared against
// the one before it, signals disagreement: a negative keyword or
// phrase in the response (scrubbed of code fences, inline code, and
// quoted strings so example snippets don't trip the match), or a
// stance-metadata mismatch between the two turns.
func (m *Manager) detectConflict(conversation []DiscussionTurn) (bool, string) {
	if len(conversation) < 2 {
		return false, ""
	}
	latest := conversation[len(conversation)-1]
	previous := conversation[len(conversation)-2]

	normalized := normalizeForConflictText(latest.Response)
	for _, kw := range conflictKeywords {
		if strings.Contains(normalized, kw) {
			return true, "Keyword '" + kw + "' indicates disagreement"
		}
	}
	for _, phrase := range conflictPhrases {
		if strings.Contains(normalized, phrase) {
			return true, "Phrase '" + phrase + "' indicates disagreement"
		}
	}

	stanceLatest := extractStance(latest)
	stancePrevious := extractStance(previous)
	if stanceLatest != "" && stancePrevious != "" && stanceLatest != stancePrevious {
		return true, "Stance mismatch: '" + stancePrevious + "' vs '" + stanceLatest + "'"
	}

	return false, ""
}

func normalizeForConflictText(text string) string {
	if text == "" {
		return ""
	}
	scrubbed := codeFencePattern.ReplaceAllString(text, " ")
	scrubbed = inlineCodePattern.ReplaceAllString(scrubbed, " ")
	scrubbed = quotedPattern.ReplaceAllString(scrubbed, " ")
	return strings.ToLower(scrubbed)
}

func extractStance(turn DiscussionTurn) string {
	if stance, ok := turn.Metadata["stance"].(string); ok {
		return strings.ToLower(stance)
	}
	return ""
}
