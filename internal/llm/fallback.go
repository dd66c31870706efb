package llm

import (
	"fmt"
	"strings"
)

const (
	feelingsReply = "I understand you're sharing your feelings. Remember, it's okay to feel what you're feeling. Would you like to talk more about it?"
	supportReply  = "I'm here to listen and support you. What's on your mind?"
	genericReply  = "I hear you: '%s'. I'm here to listen and support you. How are you feeling today?"
)

type fallbackRule struct {
	bucket   string
	keywords []string // nil matches any content
	reply    func(content string) string
}

// Evaluated in order, first match wins. Bucket order is significant: a
// message mentioning both "sad" and "help" is a feelings message.
var fallbackRules = []fallbackRule{
	{
		bucket:   "feelings",
		keywords: []string{"feeling", "feel", "mood", "sad", "happy", "anxious"},
		reply:    func(string) string { return feelingsReply },
	},
	{
		bucket:   "support",
		keywords: []string{"help", "support", "need"},
		reply:    func(string) string { return supportReply },
	},
	{
		bucket: "generic",
		reply:  func(content string) string { return fmt.Sprintf(genericReply, content) },
	},
}

func (r fallbackRule) matches(lowered string) bool {
	if r.keywords == nil {
		return true
	}
	for _, keyword := range r.keywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// fallbackReply picks the rule-based reply used when no provider is configured.
func fallbackReply(content string) (bucket, reply string) {
	lowered := strings.ToLower(content)
	for _, rule := range fallbackRules {
		if rule.matches(lowered) {
			return rule.bucket, rule.reply(content)
		}
	}
	// unreachable while the last rule is a catch-all
	return "generic", fmt.Sprintf(genericReply, content)
}
