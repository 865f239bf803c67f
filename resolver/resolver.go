// Package resolver links a spoken client name to a registry entry.
//
// Matching is permissive: an entry matches when its lowercased
// name contains the lowercased spoken name. The registry is ordered
// most-recent-first and the first match wins.
package resolver

import (
	"strings"

	"github.com/butancak6/constructionos/records"
)

type Match struct {
	Client records.Client
	// Candidates is the number of entries that matched; more than one means
	// the link was ambiguous.
	Candidates int
}

// Resolve returns the first registry entry whose name contains spoken.
// An empty or all-whitespace spoken name never matches.
func Resolve(registry []records.Client, spoken string) (Match, bool) {
	needle := strings.ToLower(strings.TrimSpace(spoken))
	if needle == "" {
		return Match{}, false
	}

	var m Match
	found := false
	for _, c := range registry {
		if !strings.Contains(strings.ToLower(c.Name), needle) {
			continue
		}
		if !found {
			m.Client = c
			found = true
		}
		m.Candidates++
	}
	return m, found
}
