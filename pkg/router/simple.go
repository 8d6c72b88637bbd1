package router

import (
	"regexp"
	"strings"
)

// simplePatterns match greetings, acknowledgements and other messages that
// need no memory retrieval and no tools
var simplePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(hi|hello|hey|hiya|howdy)$`),
	regexp.MustCompile(`^(hi|hello|hey)\s+(there|again)?$`),
	regexp.MustCompile(`^how\s+(are\s+you|r\s+u)[?!]*$`),
	regexp.MustCompile(`^(good\s+)?(morning|afternoon|evening|night)[?!]*$`),
	regexp.MustCompile(`^what'?s\s+up[?!]*$`),
	regexp.MustCompile(`^(thanks?|thank\s+you|thx)[?!]*$`),
	regexp.MustCompile(`^(bye|goodbye|see\s+ya|see\s+you|later)[?!]*$`),
	regexp.MustCompile(`^(yes|yeah|yep|no|nope|ok|okay)[?!]*$`),
	regexp.MustCompile(`^(lol|haha|cool|nice|awesome|great)[?!]*$`),
}

// IsSimpleMessage reports whether the message is a greeting or
// acknowledgement that can be answered directly without memory or tools
func IsSimpleMessage(message string) bool {
	normalized := strings.ToLower(strings.TrimSpace(message))
	for _, pattern := range simplePatterns {
		if pattern.MatchString(normalized) {
			return true
		}
	}
	return false
}
