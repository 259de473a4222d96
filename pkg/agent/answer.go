package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFence  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// ExtractJSON returns the JSON object contained in a model answer. Reasoning
// blocks and Markdown code fences are stripped first; failing that, the
// outermost braces are tried.
func ExtractJSON(answer string) (string, bool) {
	text := strings.TrimSpace(thinkBlock.ReplaceAllString(answer, ""))

	if json.Valid([]byte(text)) {
		return text, true
	}

	if m := codeFence.FindStringSubmatch(text); m != nil {
		candidate := strings.TrimSpace(m[1])
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		candidate := text[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
	}

	return "", false
}
