package poiorchestrator

import (
	"strings"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// domainDictionary builds one shared matcher over a POI-domain vocabulary,
// the same Aho-Corasick idiom the pack uses for chat-intent classification.
var domainDictionary = func() ahocorasick.AhoCorasick {
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: true,
		MatchOnlyWholeWords:  true,
	})
	return builder.Build([]string{
		"restaurant", "food", "cuisine", "dining", "cafe", "bar", "brunch",
		"museum", "gallery", "park", "garden", "attraction", "landmark",
		"hotel", "hostel", "resort", "stay",
		"market", "shopping", "boutique",
		"nightlife", "live music", "festival",
	})
}()

// supplementKeywords enriches an LLM-derived keyword list with dictionary
// hits found directly in the persona text, bounded to keywordK total.
// Purely additive: it is never used in place of the extraction call, only
// alongside it, and it never runs on the hard-failure path (spec.md §4.6
// requires the failure path to return the destination alone).
func supplementKeywords(persona string, existing []string, keywordK int) []string {
	seen := make(map[string]bool, len(existing))
	out := make([]string, 0, keywordK)
	for _, k := range existing {
		norm := strings.ToLower(strings.TrimSpace(k))
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		out = append(out, k)
	}

	lower := strings.ToLower(persona)
	for _, m := range domainDictionary.FindAll(lower) {
		if len(out) >= keywordK {
			break
		}
		hit := lower[m.Start():m.End()]
		if seen[hit] {
			continue
		}
		seen[hit] = true
		out = append(out, hit)
	}
	if len(out) > keywordK {
		out = out[:keywordK]
	}
	return out
}
