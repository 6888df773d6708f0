package textmatch

import (
	"testing"

	"github.com/winemarket/backend/internal/domain"
)

func TestQueryPack(t *testing.T) {
	t.Run("full wine orders most specific first", func(t *testing.T) {
		wine := &domain.WineForMatch{Producer: "Domaine Leflaive", Name: "Puligny-Montrachet", Vintage: "2020"}
		got := QueryPack(wine)
		want := []string{
			"Domaine Leflaive Puligny-Montrachet 2020",
			"Domaine Leflaive Puligny-Montrachet",
			"Puligny-Montrachet 2020",
			"Domaine Leflaive 2020",
			"Puligny-Montrachet",
		}
		if len(got) != len(want) {
			t.Fatalf("QueryPack = %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("QueryPack[%d] = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("empty vintage has no blanks or duplicates", func(t *testing.T) {
		wine := &domain.WineForMatch{Producer: "Domaine Leflaive", Name: "Puligny-Montrachet"}
		got := QueryPack(wine)
		seen := map[string]bool{}
		for _, q := range got {
			if q == "" {
				t.Error("pack contains an empty query")
			}
			if seen[q] {
				t.Errorf("pack contains duplicate %q", q)
			}
			seen[q] = true
		}
		if len(got) != 2 {
			t.Errorf("QueryPack = %v, want 2 entries", got)
		}
	})

	t.Run("name only when producer and vintage absent", func(t *testing.T) {
		got := QueryPack(&domain.WineForMatch{Name: "Rocalhas"})
		if len(got) != 1 || got[0] != "Rocalhas" {
			t.Errorf("QueryPack = %v, want [Rocalhas]", got)
		}
	})

	t.Run("year in name is not repeated", func(t *testing.T) {
		got := QueryPack(&domain.WineForMatch{Name: "Rocalhas (2020)", Vintage: "2020"})
		if got[0] != "Rocalhas 2020" {
			t.Errorf("QueryPack[0] = %q, want %q", got[0], "Rocalhas 2020")
		}
	})

	t.Run("nil wine", func(t *testing.T) {
		if got := QueryPack(nil); got != nil {
			t.Errorf("QueryPack(nil) = %v, want nil", got)
		}
	})
}
