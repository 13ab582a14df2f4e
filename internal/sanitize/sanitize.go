package sanitize

import (
	"regexp"
	"strings"
)

// MaxInputRunes caps player input length before it reaches any prompt.
const MaxInputRunes = 500

// dangerousPatterns flag prompt-injection and jailbreak attempts. Flagged
// input is not rejected, only stripped and marked for a suspicion penalty.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(previous|all|above)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all)`),
	regexp.MustCompile(`(?i)pretend\s+to\s+be`),
	regexp.MustCompile(`(?i)act\s+as`),
	regexp.MustCompile(`(?i)你\s*现在\s*是\s*(chatgpt|gpt|assistant|系统|管理员|开发者)`),
	regexp.MustCompile(`(?i)你的(新|真正的?)?(身份|角色)\s*(是|改为|改成)`),
	regexp.MustCompile(`从现在开始你是`),
	regexp.MustCompile(`(?i)system\s*:?\s*prompt`),
	regexp.MustCompile(`(?i)\[system\]`),
	regexp.MustCompile(`(?i)\[assistant\]`),
	regexp.MustCompile(`(?i)\[user\]`),
	regexp.MustCompile(`(?i)jailbreak`),
	regexp.MustCompile(`(?i)DAN\s*mode`),
	regexp.MustCompile(`(?i)developer\s*mode`),
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+=`),
}

var specialChars = strings.NewReplacer("<", "", ">", "", "{", "", "}", "", "[", "", "]", "")

// Result is a cleaned player input plus whether it tripped a filter.
type Result struct {
	Clean      string
	WasFlagged bool
}

// IsDangerous reports whether input matches any injection pattern.
func IsDangerous(input string) bool {
	for _, p := range dangerousPatterns {
		if p.MatchString(input) {
			return true
		}
	}
	return false
}

// Input trims, caps, and filters raw player text. Flagged input has its
// structural characters removed but the conversation continues.
func Input(raw string) Result {
	clean := strings.TrimSpace(raw)

	if runes := []rune(clean); len(runes) > MaxInputRunes {
		clean = string(runes[:MaxInputRunes]) + "..."
	}

	flagged := IsDangerous(clean)
	if flagged {
		clean = specialChars.Replace(clean)
	}

	return Result{Clean: clean, WasFlagged: flagged}
}
