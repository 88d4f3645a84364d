package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Keyword is a scored term from page text.
type Keyword struct {
	Term  string  `json:"term"`
	Count int     `json:"count"`
	Score float64 `json:"score"`
}

var tokenPattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z\-']{2,}`)

// stopwords are dropped before scoring. Short and common English glue words.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "our": true,
	"your": true, "with": true, "this": true, "that": true, "from": true,
	"have": true, "has": true, "was": true, "were": true, "will": true,
	"more": true, "about": true, "into": true, "their": true, "they": true,
	"them": true, "what": true, "when": true, "where": true, "which": true,
	"who": true, "how": true, "why": true, "its": true, "also": true,
	"been": true, "being": true, "than": true, "then": true, "there": true,
	"these": true, "those": true, "such": true, "some": true, "other": true,
	"per": true, "via": true, "any": true, "each": true, "out": true,
	"use": true, "used": true, "using": true, "get": true, "one": true,
	"two": true, "new": true, "may": true, "most": true, "over": true,
	"only": true, "here": true, "just": true, "like": true, "make": true,
	"made": true, "every": true, "well": true, "back": true, "very": true,
}

// TopKeywords tokenizes text, drops stopwords, and returns the k highest
// scored terms. Score is term frequency normalized by the most frequent term,
// so the top keyword always scores 1.0.
func TopKeywords(text string, k int) []Keyword {
	if k <= 0 {
		k = 10
	}
	counts := map[string]int{}
	for _, token := range tokenPattern.FindAllString(text, -1) {
		term := strings.ToLower(token)
		if stopwords[term] {
			continue
		}
		counts[term]++
	}
	if len(counts) == 0 {
		return nil
	}

	keywords := make([]Keyword, 0, len(counts))
	maxCount := 0
	for term, count := range counts {
		keywords = append(keywords, Keyword{Term: term, Count: count})
		if count > maxCount {
			maxCount = count
		}
	}
	sort.Slice(keywords, func(i, j int) bool {
		if keywords[i].Count != keywords[j].Count {
			return keywords[i].Count > keywords[j].Count
		}
		return keywords[i].Term < keywords[j].Term
	})
	if len(keywords) > k {
		keywords = keywords[:k]
	}
	for i := range keywords {
		keywords[i].Score = float64(keywords[i].Count) / float64(maxCount)
	}
	return keywords
}

// KeywordTerms returns just the terms of TopKeywords, for storage.
func KeywordTerms(text string, k int) []string {
	keywords := TopKeywords(text, k)
	terms := make([]string, len(keywords))
	for i, kw := range keywords {
		terms[i] = kw.Term
	}
	return terms
}
