package matching

import "testing"

func TestSuggesterFindsClosestName(t *testing.T) {
	s := NewSuggester([]string{"Maria Silva", "João Souza", "Empreendimento Alfa Ltda", "Maria Silva"})
	if s == nil {
		t.Fatal("NewSuggester returned nil for a non-empty list")
	}
	got := s.Suggest("maria silv", 1)
	if len(got) != 1 || got[0] != "Maria Silva" {
		t.Errorf("Suggest = %v, want [Maria Silva]", got)
	}
	if all := s.Suggest("joao souz", 5); len(all) == 0 || len(all) > 3 {
		t.Errorf("Suggest should return between 1 and 3 distinct names, got %v", all)
	}
}

func TestSuggesterEmptyInputs(t *testing.T) {
	if s := NewSuggester([]string{"", "   "}); s != nil {
		t.Error("NewSuggester should return nil when nothing can be indexed")
	}
	var s *Suggester
	if got := s.Suggest("maria", 3); got != nil {
		t.Errorf("nil Suggester returned %v", got)
	}
	s = NewSuggester([]string{"Maria Silva"})
	if got := s.Suggest("  ", 3); got != nil {
		t.Errorf("blank query returned %v", got)
	}
	if got := s.Suggest("maria", 0); got != nil {
		t.Errorf("n=0 returned %v", got)
	}
}

func TestSuggesterIgnoresCaseOfQuery(t *testing.T) {
	s := NewSuggester([]string{"Maria Silva", "João Souza"})
	for _, q := range []string{"maria silv", "MARIA SILV", "Mário Silv"} {
		got := s.Suggest(q, 3)
		if len(got) == 0 || got[0] != "Maria Silva" {
			t.Errorf("Suggest(%q) = %v, want Maria Silva first", q, got)
		}
	}
}

func TestSuggesterDropsUnrelatedNames(t *testing.T) {
	s := NewSuggester([]string{"Maria Silva", "João Souza", "José da Conceição"})
	got := s.Suggest("maria silv", 3)
	if len(got) != 1 || got[0] != "Maria Silva" {
		t.Errorf("Suggest = %v, want only [Maria Silva]", got)
	}
	if got := s.Suggest("xyzw qkpt", 3); len(got) != 0 {
		t.Errorf("Suggest for an unrelated query = %v, want none", got)
	}
}

func TestTrigramOverlap(t *testing.T) {
	tests := []struct {
		query, candidate string
		want             float64
	}{
		{"maria silv", "maria silva", 1},
		{"joao", "maria silva", 0},
		{"ab", "abc", 1},
		{"ab", "xyz", 0},
	}
	for _, tt := range tests {
		if got := trigramOverlap(tt.query, tt.candidate); got != tt.want {
			t.Errorf("trigramOverlap(%q, %q) = %g, want %g", tt.query, tt.candidate, got, tt.want)
		}
	}
}
