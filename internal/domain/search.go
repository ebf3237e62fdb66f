package domain

import (
	"cmp"
	"net/url"
	"slices"
	"strings"
)

const (
	// Scoring weights
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0
	ScoreFuzzyMatch     = 25.0

	// Earlier substring matches get up to this much on top
	ScorePositionBonus = 10.0

	// A title match outweighs a host match
	ScoreHostWeight = 0.5

	// Shorter queries only match literally
	minFuzzyLen = 3
)

// ScoreRecord scores r against query. Zero means no match.
func ScoreRecord(query string, r Record) float64 {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return 0.0
	}

	score := scoreText(query, strings.ToLower(r.Title))
	if u, err := url.Parse(r.URL); err == nil && u.Hostname() != "" {
		host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		score = max(score, ScoreHostWeight*scoreText(query, host))
	}
	return score
}

func scoreText(query, text string) float64 {
	if text == "" {
		return 0.0
	}

	if query == text {
		return ScoreExactMatch
	}
	if strings.HasPrefix(text, query) {
		return ScorePrefixMatch
	}
	if index := strings.Index(text, query); index >= 0 {
		bonus := ScorePositionBonus * (1.0 - float64(index)/float64(len(text)))
		return ScoreSubstringMatch + bonus
	}

	// Every word present, in any order
	if words := strings.Fields(query); len(words) > 1 {
		if !slices.ContainsFunc(words, func(w string) bool { return !strings.Contains(text, w) }) {
			return ScoreFuzzyMatch
		}
	}

	if len(query) < minFuzzyLen {
		return 0.0
	}
	if similarity := calculateSimilarity(query, text); similarity > 0.5 {
		return ScoreFuzzyMatch * similarity
	}
	return 0.0
}

// calculateSimilarity is the share of runes of s1 that occur in s2.
func calculateSimilarity(s1, s2 string) float64 {
	if s1 == "" || s2 == "" {
		return 0.0
	}

	matches, total := 0, 0
	for _, c := range s1 {
		total++
		if strings.ContainsRune(s2, c) {
			matches++
		}
	}
	return float64(matches) / float64(total)
}

// Search returns the entries matching query, best match first. Entries
// with the same score keep their relative order.
func Search(query string, entries []Entry) []Entry {
	type candidate struct {
		entry Entry
		score float64
	}

	candidates := make([]candidate, 0, len(entries))
	for _, e := range entries {
		if s := ScoreRecord(query, e.Record); s > 0 {
			candidates = append(candidates, candidate{entry: e, score: s})
		}
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		return cmp.Compare(b.score, a.score)
	})

	out := make([]Entry, len(candidates))
	for i, c := range candidates {
		out[i] = c.entry
	}
	return out
}
