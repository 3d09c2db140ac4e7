package value

import "regexp"

// RegexVal is a compiled regular expression plus its original source
// pattern (needed by R2S, which converts a regex value back to the text
// that produced it, per spec.md section 4.1). None of the retrieved
// example repositories reach for a third-party regex engine — sentra's
// SIEM log parsers and google-mtail's checker both compile patterns with
// the standard library's regexp package, so this follows the corpus
// rather than deviating from it.
type RegexVal struct {
	Source   string
	Compiled *regexp.Regexp
}

func CompileRegex(pattern string) (*RegexVal, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	return &RegexVal{Source: pattern, Compiled: re}, nil
}

// MatchGroup is one captured submatch: the substring's text, copied at
// match time, and whether the group took part in the match. SREGGROUP
// copies Text into the Runner's own string arena.
type MatchGroup struct {
	Text  string
	Found bool
}

// Match runs the regex against s and returns the capture groups: index 0
// is the whole match, indices 1..N are submatches. An unmatched regex
// yields a nil slice (SREGMATCH sees this as "match failed").
func (r *RegexVal) Match(s *StringVal) []MatchGroup {
	loc := r.Compiled.FindStringSubmatchIndex(s.String())
	if loc == nil {
		return nil
	}
	groups := make([]MatchGroup, len(loc)/2)
	str := s.String()
	for i := range groups {
		start, end := loc[2*i], loc[2*i+1]
		if start < 0 || end < 0 {
			continue
		}
		groups[i] = MatchGroup{Text: str[start:end], Found: true}
	}
	return groups
}
