package usecases

import (
	"regexp"
	"strings"
)

// DefaultProhibitedKeywords are topics about the assistant's own implementation.
var DefaultProhibitedKeywords = []string{
	"tech stack",
	"technology",
	"framework",
	"library",
	"backend",
	"frontend",
	"programming language",
	"architecture",
	"database",
	"server",
	"api",
	"integration",
	"deployment",
	"CI/CD",
	"version control",
	"DevOps",
	"containerization",
	"microservices",
	"cloud services",
	"scalability",
	"security protocols",
	"data storage",
	"machine learning",
	"artificial intelligence",
	"natural language processing",
	"deep learning",
}

// DefaultRefusalMessage is the reply stored for prohibited questions.
const DefaultRefusalMessage = "I'm sorry, but I can't provide information about my internal technologies or frameworks. " +
	"How can I assist you with your studies or other inquiries?"

// KeywordPolicy refuses questions containing any keyword as a whole word, ignoring case.
type KeywordPolicy struct {
	pattern *regexp.Regexp
}

// NewKeywordPolicy compiles the keyword list. Blank keywords are ignored;
// words inside a multi-word keyword may be separated by any whitespace.
func NewKeywordPolicy(keywords []string) *KeywordPolicy {
	alternatives := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		words := strings.Fields(kw)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alternatives = append(alternatives, strings.Join(words, `\s+`))
	}
	if len(alternatives) == 0 {
		return &KeywordPolicy{}
	}
	return &KeywordPolicy{
		pattern: regexp.MustCompile(`(?i)\b(?:` + strings.Join(alternatives, "|") + `)\b`),
	}
}

// IsProhibited reports whether the question touches a prohibited topic.
func (p *KeywordPolicy) IsProhibited(question string) bool {
	if p.pattern == nil {
		return false
	}
	return p.pattern.MatchString(question)
}
