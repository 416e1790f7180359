package products

import "strings"

// MatchStage names the search tier that produced a result set.
type MatchStage string

const (
	StageExact MatchStage = "exact"
	StageFull  MatchStage = "full"
	StageTrim  MatchStage = "trim"
	StageNone  MatchStage = "none"
)

// minTrimRunes is the shortest term the trim stage will try.
const minTrimRunes = 2

// NormalizeText lowercases s and collapses whitespace runs to one space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// searchFieldSeparator splits fields in the search index. Normalized
// queries never contain it, so a match cannot span two fields.
const searchFieldSeparator = "\n"

// SearchText builds the substring index stored on each product.
func SearchText(name, description string, tags []string) string {
	fields := make([]string, 0, len(tags)+2)
	for _, part := range append([]string{name, description}, tags...) {
		if normalized := NormalizeText(part); normalized != "" {
			fields = append(fields, normalized)
		}
	}
	return strings.Join(fields, searchFieldSeparator)
}

// trimCandidates lists the relaxed terms for a normalized query: first
// drop trailing words while more than one remains, then drop trailing
// characters of the last remaining prefix down to minTrimRunes.
func trimCandidates(term string) []string {
	words := strings.Fields(term)
	if len(words) == 0 {
		return nil
	}
	seen := map[string]struct{}{term: {}}
	var out []string
	add := func(candidate string) {
		candidate = strings.TrimSpace(candidate)
		if len([]rune(candidate)) < minTrimRunes {
			return
		}
		if _, ok := seen[candidate]; ok {
			return
		}
		seen[candidate] = struct{}{}
		out = append(out, candidate)
	}

	for n := len(words) - 1; n >= 1; n-- {
		add(strings.Join(words[:n], " "))
	}

	runes := []rune(words[0])
	for n := len(runes) - 1; n >= minTrimRunes; n-- {
		add(string(runes[:n]))
	}
	return out
}

func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}
