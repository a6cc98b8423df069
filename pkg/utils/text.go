// Package utils provides text helpers for turning free text into upstream
// search expressions.
//
// This file implements:
//   - Word tokenization with stop-word and short-token filtering
//   - Frequency ranking of keywords
//   - OR-expression construction with phrase quoting
//   - Sanitizing of characters the upstream search syntax rejects
//   - Topic slug to display phrase conversion
//
// Complexity:
//   - Tokenize / RankKeywords: O(n log n) in the number of tokens
package utils

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// MinTokenLength is the shortest token kept as a keyword.
const MinTokenLength = 3

var (
	wordRe       = regexp.MustCompile(`[\p{L}\p{N}_'-]+`)
	slashRe      = regexp.MustCompile(`/+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the a an and or but if then else for of in to on at by with as
		from that this these those is are was were be been being it its into over about after
		before not no yes we you they their our his her him she he them which who whom what when
		where why how`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord reports whether w (lowercase) is a stop word.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Tokenize lowercases text and returns its word tokens in order, with
// leading/trailing hyphens and apostrophes removed, stop words dropped and
// tokens shorter than MinTokenLength dropped.
func Tokenize(text string) []string {
	raw := wordRe.FindAllString(strings.ToLower(text), -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = strings.Trim(tok, "-'")
		if utf8.RuneCountInString(tok) < MinTokenLength || IsStopWord(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// RankKeywords returns up to limit distinct tokens ordered by frequency,
// then by length (longer first), then by first occurrence.
func RankKeywords(tokens []string, limit int) []string {
	type tokenStat struct {
		word  string
		count int
		first int
	}

	stats := make(map[string]*tokenStat, len(tokens))
	order := make([]*tokenStat, 0, len(tokens))
	for i, tok := range tokens {
		if s, ok := stats[tok]; ok {
			s.count++
			continue
		}
		s := &tokenStat{word: tok, count: 1, first: i}
		stats[tok] = s
		order = append(order, s)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].count != order[j].count {
			return order[i].count > order[j].count
		}
		return utf8.RuneCountInString(order[i].word) > utf8.RuneCountInString(order[j].word)
	})

	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}
	out := make([]string, len(order))
	for i, s := range order {
		out[i] = s.word
	}
	return out
}

// QuoteTerm wraps multi-word terms in double quotes. Terms already quoted are
// returned unchanged.
func QuoteTerm(term string) string {
	term = strings.TrimSpace(term)
	if strings.HasPrefix(term, `"`) && strings.HasSuffix(term, `"`) && len(term) > 1 {
		return term
	}
	if strings.ContainsAny(term, " \t") {
		return `"` + strings.ReplaceAll(term, `"`, "") + `"`
	}
	return term
}

// BuildORExpression joins terms as "(a OR "b c")". Blank terms are skipped;
// a single term is returned without parentheses. Returns "" when no term
// remains.
func BuildORExpression(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		if strings.TrimSpace(t) == "" {
			continue
		}
		parts = append(parts, QuoteTerm(t))
	}
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return "(" + strings.Join(parts, " OR ") + ")"
	}
}

// IsPrebuiltORQuery reports whether text already looks like an OR
// expression, e.g. "(a OR b)".
func IsPrebuiltORQuery(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasPrefix(t, "(") && strings.Contains(t, " OR ")
}

// SanitizeQuery replaces runs of slashes with a space and collapses
// whitespace.
func SanitizeQuery(q string) string {
	q = slashRe.ReplaceAllString(q, " ")
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(q, " "))
}

// SlugToPhrase converts a URL topic slug such as "Climate_change" into the
// display phrase "Climate change". Invalid escapes are kept verbatim.
func SlugToPhrase(slug string) string {
	if decoded, err := url.PathUnescape(slug); err == nil {
		slug = decoded
	}
	slug = strings.NewReplacer("_", " ", "-", " ").Replace(slug)
	return strings.Join(strings.Fields(slug), " ")
}

// DedupeFold returns terms with blanks removed and case-insensitive
// duplicates dropped, keeping the first spelling.
func DedupeFold(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
	}
	return out
}
