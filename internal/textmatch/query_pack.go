package textmatch

import (
	"strings"

	"github.com/winemarket/backend/internal/domain"
)

// QueryPack builds the ordered search strings for a wine, most specific first:
// producer+name+vintage, producer+name, name+vintage, producer+vintage, name.
// A combination is skipped when any of its parts is blank; duplicates are dropped.
func QueryPack(wine *domain.WineForMatch) []string {
	if wine == nil {
		return nil
	}

	producer := collapse(wine.Producer)
	vintage := collapse(wine.Vintage)
	name := collapse(StripYear(wine.Name))
	if name == "" {
		name = collapse(wine.Name)
	}

	combos := [][]string{
		{producer, name, vintage},
		{producer, name},
		{name, vintage},
		{producer, vintage},
		{name},
	}

	pack := make([]string, 0, len(combos))
	seen := make(map[string]bool, len(combos))
	for _, parts := range combos {
		if hasBlank(parts) {
			continue
		}
		q := strings.Join(parts, " ")
		key := strings.ToLower(q)
		if seen[key] {
			continue
		}
		seen[key] = true
		pack = append(pack, q)
	}
	return pack
}

func collapse(s string) string {
	return strings.TrimSpace(multipleSpacesRegex.ReplaceAllString(s, " "))
}

func hasBlank(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return true
		}
	}
	return false
}
