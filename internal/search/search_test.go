package search

import (
	"testing"

	"github.com/nikbrunner/paperstack/internal/model"
)

func papers(titles ...string) []model.Paper {
	out := make([]model.Paper, len(titles))
	for i, title := range titles {
		out[i] = model.NewPaper(model.NewPaperParams{Title: title})
	}
	return out
}

func TestFuzzySearchPapers_EmptyQuery(t *testing.T) {
	results := FuzzySearchPapers(papers("Deep Learning"), "  ", FieldTitle)

	if len(results) != 0 {
		t.Errorf("expected 0 results for empty query, got %d", len(results))
	}
}

func TestFuzzySearchPapers_ExactMatch(t *testing.T) {
	results := FuzzySearchPapers(papers("Deep Learning", "Deep Forest"), "Deep Learning", FieldTitle)

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Paper.Title != "Deep Learning" {
		t.Errorf("expected Deep Learning, got %s", results[0].Paper.Title)
	}
}

func TestFuzzySearchPapers_FuzzyMatch(t *testing.T) {
	ps := papers("Graph Attention Networks", "Generative Adversarial Nets")

	// "graphnet" should fuzzy match "Graph Attention Networks"
	results := FuzzySearchPapers(ps, "graphnet", FieldTitle)

	if len(results) < 1 {
		t.Fatalf("expected at least 1 result for 'graphnet', got %d", len(results))
	}
	if results[0].Paper.Title != "Graph Attention Networks" {
		t.Errorf("expected Graph Attention Networks as first result, got %s", results[0].Paper.Title)
	}
}

func TestFuzzySearchPapers_CaseInsensitive(t *testing.T) {
	results := FuzzySearchPapers(papers("BERT"), "bert", FieldTitle)

	if len(results) != 1 {
		t.Fatalf("expected 1 result for case-insensitive match, got %d", len(results))
	}
}

func TestFuzzySearchPapers_SortedByScore(t *testing.T) {
	ps := papers("A Survey of Vision Transformers", "Transformers")

	results := FuzzySearchPapers(ps, "transformers", FieldTitle)

	if len(results) < 2 {
		t.Fatalf("expected at least 2 results, got %d", len(results))
	}
	if results[0].Paper.Title != "Transformers" {
		t.Errorf("expected 'Transformers' as first result (exact match), got %s", results[0].Paper.Title)
	}
}

func TestFuzzySearchPapers_Fields(t *testing.T) {
	ps := []model.Paper{
		model.NewPaper(model.NewPaperParams{Title: "Deep Learning", Authors: "Yann LeCun", Source: "Nature"}),
		model.NewPaper(model.NewPaperParams{Title: "Attention Is All You Need", Authors: "Ashish Vaswani", Source: "NeurIPS"}),
	}

	tests := []struct {
		name  string
		query string
		field Field
		want  int
	}{
		{"author", "lecun", FieldAuthor, 1},
		{"author not in title", "lecun", FieldTitle, 0},
		{"journal", "nature", FieldJournal, 1},
		{"all fields", "vaswani", FieldAll, 1},
		{"no match", "xyz123", FieldAll, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := FuzzySearchPapers(ps, tt.query, tt.field)
			if len(results) != tt.want {
				t.Errorf("expected %d results, got %d", tt.want, len(results))
			}
		})
	}
}

func TestParseField(t *testing.T) {
	for in, want := range map[string]Field{"": FieldTitle, "Author": FieldAuthor, "source": FieldJournal, "all": FieldAll} {
		got, ok := ParseField(in)
		if !ok || got != want {
			t.Errorf("ParseField(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := ParseField("year"); ok {
		t.Error("expected year to be rejected")
	}
}
