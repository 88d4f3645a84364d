package extract

import (
	"regexp"
	"sort"
	"strings"
)

// InstagramProfile is the structured output of bio-text parsing.
type InstagramProfile struct {
	Username     string   `json:"username,omitempty"`
	Emails       []string `json:"emails,omitempty"`
	Phones       []string `json:"phones,omitempty"`
	Mentions     []string `json:"mentions,omitempty"`
	Hashtags     []string `json:"hashtags,omitempty"`
	ExternalLink string   `json:"external_link,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	IsBusiness   bool     `json:"is_business"`
	Confidence   float64  `json:"confidence"`
}

var (
	mentionPattern = regexp.MustCompile(`@([A-Za-z0-9._]{2,30})`)
	hashtagPattern = regexp.MustCompile(`#([A-Za-z0-9_]{2,50})`)
	bioLinkPattern = regexp.MustCompile(`https?://[^\s]+`)
)

// businessMarkers in a bio suggest a commercial account.
var businessMarkers = []string{
	"shop", "store", "order", "booking", "book now", "dm for", "inquiries",
	"wholesale", "shipping", "official", "contact us", "we ship",
}

// bioCategories maps bio keywords to a coarse category label.
var bioCategories = map[string]string{
	"photographer": "photography",
	"photography":  "photography",
	"fitness":      "fitness",
	"coach":        "coaching",
	"restaurant":   "food",
	"bakery":       "food",
	"cafe":         "food",
	"boutique":     "fashion",
	"fashion":      "fashion",
	"beauty":       "beauty",
	"salon":        "beauty",
	"travel":       "travel",
	"realtor":      "real estate",
	"real estate":  "real estate",
	"artist":       "art",
	"design":       "design",
	"agency":       "agency",
}

// ParseInstagramBio applies the same regex-heuristic pattern as company
// extraction to Instagram bio text.
func ParseInstagramBio(username, bio string) InstagramProfile {
	profile := InstagramProfile{
		Username: strings.TrimPrefix(strings.TrimSpace(username), "@"),
	}

	profile.Emails = dedupe(emailPattern.FindAllString(bio, 3))
	for _, m := range phonePattern.FindAllString(bio, 3) {
		if digitCount(m) >= 8 {
			profile.Phones = append(profile.Phones, strings.TrimSpace(m))
		}
	}
	profile.Phones = dedupe(profile.Phones)

	// Mentions in a bio exclude email local parts the regex also matches.
	stripped := emailPattern.ReplaceAllString(bio, "")
	for _, match := range mentionPattern.FindAllStringSubmatch(stripped, 10) {
		profile.Mentions = append(profile.Mentions, strings.ToLower(match[1]))
	}
	profile.Mentions = dedupe(profile.Mentions)

	for _, match := range hashtagPattern.FindAllStringSubmatch(bio, 10) {
		profile.Hashtags = append(profile.Hashtags, strings.ToLower(match[1]))
	}
	profile.Hashtags = dedupe(profile.Hashtags)

	if link := bioLinkPattern.FindString(bio); link != "" {
		profile.ExternalLink = strings.TrimRight(link, ".,;)")
	}

	lower := strings.ToLower(bio)
	seen := map[string]bool{}
	for marker, category := range bioCategories {
		if strings.Contains(lower, marker) && !seen[category] {
			seen[category] = true
			profile.Categories = append(profile.Categories, category)
		}
	}
	sort.Strings(profile.Categories)

	for _, marker := range businessMarkers {
		if strings.Contains(lower, marker) {
			profile.IsBusiness = true
			break
		}
	}

	profile.Confidence = instagramConfidence(profile)
	return profile
}

// instagramConfidence mirrors the company formula: manual weights over
// boolean signals, clamped into [0,1].
func instagramConfidence(p InstagramProfile) float64 {
	score := 0.0
	if len(p.Emails) > 0 {
		score += 0.35
	}
	if len(p.Phones) > 0 {
		score += 0.25
	}
	if p.ExternalLink != "" {
		score += 0.15
	}
	if p.IsBusiness {
		score += 0.15
	}
	if len(p.Categories) > 0 {
		score += 0.10
	}
	if score > 1 {
		score = 1
	}
	return score
}
