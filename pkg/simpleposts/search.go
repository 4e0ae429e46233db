package simpleposts

import (
	"strings"
	"unicode"
)

// SearchQuery is a parsed full-text query.
//
// Plain terms are alternatives: a post matches when it contains any of
// them. Quoted phrases are required: when present, a post must contain
// every phrase and plain terms only contribute to ranking. Terms prefixed
// with '-' exclude posts that contain them.
type SearchQuery struct {
	Raw      string
	Terms    []string
	Phrases  [][]string
	Excluded []string
}

// ParseSearchQuery splits q into terms, quoted phrases and exclusions.
func ParseSearchQuery(q string) SearchQuery {
	sq := SearchQuery{Raw: q}
	inPhrase := false
	for _, segment := range strings.Split(q, `"`) {
		if inPhrase {
			if tokens := Tokenize(segment); len(tokens) > 0 {
				sq.Phrases = append(sq.Phrases, tokens)
			}
		} else {
			for _, field := range strings.Fields(segment) {
				if strings.HasPrefix(field, "-") {
					sq.Excluded = append(sq.Excluded, Tokenize(field[1:])...)
					continue
				}
				sq.Terms = append(sq.Terms, Tokenize(field)...)
			}
		}
		inPhrase = !inPhrase
	}
	sq.Terms = dedupe(sq.Terms)
	sq.Excluded = dedupe(sq.Excluded)
	return sq
}

// Empty reports whether the query can match nothing.
func (q SearchQuery) Empty() bool {
	return len(q.Terms) == 0 && len(q.Phrases) == 0
}

// Match scores text against the query. ok is false when the text does
// not match.
func (q SearchQuery) Match(text string) (score int, ok bool) {
	if q.Empty() {
		return 0, false
	}
	tokens := Tokenize(text)
	present := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		present[t] = struct{}{}
	}

	for _, ex := range q.Excluded {
		if _, found := present[ex]; found {
			return 0, false
		}
	}

	for _, phrase := range q.Phrases {
		if !containsSequence(tokens, phrase) {
			return 0, false
		}
		score++
	}

	for _, term := range q.Terms {
		if _, found := present[term]; found {
			score++
		}
	}

	if len(q.Phrases) == 0 && score == 0 {
		return 0, false
	}
	return score, true
}

// TSQuery renders the query as a Postgres tsquery expression. Tokens only
// ever contain letters and digits, so they are safe to embed as lexemes.
func (q SearchQuery) TSQuery() string {
	if q.Empty() {
		return ""
	}
	var parts []string
	if len(q.Phrases) > 0 {
		for _, phrase := range q.Phrases {
			lexemes := make([]string, len(phrase))
			for i, t := range phrase {
				lexemes[i] = quoteLexeme(t)
			}
			parts = append(parts, "("+strings.Join(lexemes, " <-> ")+")")
		}
	} else {
		lexemes := make([]string, len(q.Terms))
		for i, t := range q.Terms {
			lexemes[i] = quoteLexeme(t)
		}
		parts = append(parts, "("+strings.Join(lexemes, " | ")+")")
	}
	for _, ex := range q.Excluded {
		parts = append(parts, "!"+quoteLexeme(ex))
	}
	return strings.Join(parts, " & ")
}

// Tokenize lower-cases s and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func quoteLexeme(t string) string {
	return "'" + t + "'"
}

func containsSequence(tokens, seq []string) bool {
	if len(seq) == 0 {
		return true
	}
outer:
	for i := 0; i+len(seq) <= len(tokens); i++ {
		for j := range seq {
			if tokens[i+j] != seq[j] {
				continue outer
			}
		}
		return true
	}
	return false
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
