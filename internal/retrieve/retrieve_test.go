package retrieve

import (
	"context"
	"strings"
	"testing"

	"github.com/ledongthuc/pdf"

	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/embedding"
	"github.com/kensaku-io/kensaku/internal/models"
	"github.com/kensaku-io/kensaku/internal/store"
)

func strptr(s string) *string { return &s }

func TestExcerptsShortTextWhole(t *testing.T) {
	got := Excerpts("just a few words here", 50, 5)
	if len(got) != 1 || got[0] != "just a few words here" {
		t.Errorf("excerpts=%v", got)
	}
}

func TestExcerptsWindowing(t *testing.T) {
	words := make([]string, 12)
	for i := range words {
		words[i] = string(rune('a' + i))
	}
	got := Excerpts(strings.Join(words, " "), 5, 2)
	// stride 3: windows at 0, 3, 6, then the tail window.
	want := []string{"a b c d e", "d e f g h", "g h i j k", "h i j k l"}
	if len(got) != len(want) {
		t.Fatalf("got %d excerpts %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("excerpt %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestExcerptsEmpty(t *testing.T) {
	if got := Excerpts("   ", 50, 5); got != nil {
		t.Errorf("expected nil for blank text, got %v", got)
	}
}

// spansForLine lays words left to right on one line, 10 units per rune plus
// a 10-unit gap, matching what wordsFromTexts would produce.
func spansForLine(y float64, words ...string) []wordSpan {
	var spans []wordSpan
	x := 0.0
	for _, w := range words {
		width := float64(len(w)) * 10
		spans = append(spans, wordSpan{text: w, box: models.Rect{X: x, Y: y, Width: width, Height: 12}})
		x += width + 10
	}
	return spans
}

func TestFindMatchesEnclosesSpan(t *testing.T) {
	words := spansForLine(700, "Hello", "world", "example", "text")
	boxes := findMatches(words, "Hello world")
	if len(boxes) != 1 {
		t.Fatalf("expected 1 match, got %d", len(boxes))
	}
	box := boxes[0]
	// The region must enclose both words: from the start of "Hello" to the
	// end of "world".
	if box.X != 0 || box.X+box.Width < 60+50 {
		t.Errorf("box does not enclose the matched words: %+v", box)
	}
	if box.Y != 700 || box.Height != 12 {
		t.Errorf("box=%+v", box)
	}
}

func TestFindMatchesNoMatch(t *testing.T) {
	words := spansForLine(700, "Hello", "world")
	if boxes := findMatches(words, "missing text"); boxes != nil {
		t.Errorf("non-matching excerpt must yield zero regions, got %v", boxes)
	}
}

func TestFindMatchesCaseAndPunctuation(t *testing.T) {
	words := spansForLine(700, "The", "results,", "shown", "below:")
	if boxes := findMatches(words, "the results shown"); len(boxes) != 1 {
		t.Errorf("matching should ignore case and edge punctuation, got %v", boxes)
	}
}

func TestFindMatchesMultiple(t *testing.T) {
	words := append(spansForLine(700, "alpha", "beta"), spansForLine(680, "alpha", "beta")...)
	if boxes := findMatches(words, "alpha beta"); len(boxes) != 2 {
		t.Errorf("expected 2 matches, got %d", len(boxes))
	}
}

func TestWordsFromTexts(t *testing.T) {
	texts := []pdf.Text{
		{S: "Hello ", X: 0, Y: 700, W: 60, FontSize: 12},
		{S: "wor", X: 60, Y: 700, W: 30, FontSize: 12},
		{S: "ld", X: 90, Y: 700, W: 20, FontSize: 12},
		{S: "next", X: 0, Y: 680, W: 40, FontSize: 12},
	}
	words := wordsFromTexts(texts)
	if len(words) != 3 {
		t.Fatalf("expected 3 words, got %d: %+v", len(words), words)
	}
	if words[0].text != "Hello" || words[1].text != "world" || words[2].text != "next" {
		t.Errorf("words=%v", words)
	}
	if words[1].box.X != 60 {
		t.Errorf("split fragments should merge into one box: %+v", words[1].box)
	}
	if words[2].box.Y != 680 {
		t.Errorf("line change should start a new word: %+v", words[2].box)
	}
}

func seedStore(t *testing.T, emb embedding.Embedder) *store.MemoryStore {
	t.Helper()
	st, err := store.NewMemoryStore(emb.Dimensions())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	texts := map[string]string{
		"report.pdf": "quarterly revenue grew in the second half",
		"notes.md":   "meeting notes about hiring plans",
	}
	var records []*models.IndexRecord
	for name, text := range texts {
		vec, err := emb.Embed(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		records = append(records, &models.IndexRecord{
			ID:     name + "#0",
			Text:   text,
			Vector: vec,
			Metadata: models.ChunkMetadata{
				Filename:    strptr(name),
				PageNumbers: pagesFor(name),
			},
		})
	}
	if _, err := st.BulkUpsert(ctx, records); err != nil {
		t.Fatal(err)
	}
	return st
}

func pagesFor(name string) []int {
	if strings.HasSuffix(name, ".pdf") {
		return []int{2, 3}
	}
	return nil
}

func TestSearchRanksExactMatchFirst(t *testing.T) {
	emb := embedding.NewMockEmbedder(16)
	st := seedStore(t, emb)
	r, err := New(emb, st, config.RetrieveConfig{DefaultLimit: 3, MaxLimit: 10})
	if err != nil {
		t.Fatal(err)
	}
	results, err := r.Search(context.Background(), "quarterly revenue grew in the second half", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if !strings.Contains(results[0].Text, "revenue") {
		t.Errorf("best result=%q", results[0].Text)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	emb := embedding.NewMockEmbedder(16)
	r, _ := New(emb, seedStore(t, emb), config.RetrieveConfig{DefaultLimit: 3, MaxLimit: 10})
	if _, err := r.Search(context.Background(), "", 0); err == nil {
		t.Error("expected an error for an empty query")
	}
}

func TestBuildContext(t *testing.T) {
	r, _ := New(embedding.NewMockEmbedder(4), mustMemStore(t, 4), config.RetrieveConfig{})
	results := []*models.QueryResult{
		{
			Text: "first chunk text",
			Metadata: models.ChunkMetadata{
				Filename:    strptr("report.pdf"),
				PageNumbers: []int{1, 3, 4},
				Title:       strptr("Findings"),
			},
		},
		{
			Text:     "second chunk text",
			Metadata: models.ChunkMetadata{Filename: strptr("notes.md")},
		},
	}
	got := r.BuildContext(results)
	if !strings.Contains(got, "Source: report.pdf - p. 1, 3, 4") {
		t.Errorf("missing page citation:\n%s", got)
	}
	if !strings.Contains(got, "Title: Findings") {
		t.Errorf("missing title line:\n%s", got)
	}
	if !strings.Contains(got, "Source: notes.md") || strings.Contains(got, "notes.md - p.") {
		t.Errorf("pageless source should cite without pages:\n%s", got)
	}
	blocks := strings.Split(got, "\n\n")
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blank-line separated blocks, got %d", len(blocks))
	}
	if !strings.HasPrefix(blocks[0], "first chunk text") {
		t.Errorf("ranking order not preserved:\n%s", got)
	}
}

func mustMemStore(t *testing.T, dims int) *store.MemoryStore {
	t.Helper()
	st, err := store.NewMemoryStore(dims)
	if err != nil {
		t.Fatal(err)
	}
	return st
}
