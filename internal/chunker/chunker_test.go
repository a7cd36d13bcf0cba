package chunker

import (
	"strings"
	"testing"

	"github.com/kensaku-io/kensaku/internal/models"
)

func item(text, heading string, pages ...int) models.ContentItem {
	it := models.ContentItem{Text: text, Heading: heading}
	for _, p := range pages {
		it.Pages = append(it.Pages, models.PageRef{Number: p})
	}
	return it
}

func doc(items ...models.ContentItem) *models.StructuredDocument {
	return &models.StructuredDocument{Name: "test.pdf", Items: items}
}

func TestNew(t *testing.T) {
	if _, err := New(nil, 10); err == nil {
		t.Error("expected error for nil tokenizer")
	}
	if _, err := New(WordTokenizer{}, 0); err == nil {
		t.Error("expected error for zero budget")
	}
	if _, err := New(WordTokenizer{}, 10); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestChunksCoverAllItems(t *testing.T) {
	d := doc(
		item("one two three", "", 1),
		item("four five six", "", 1),
		item("seven eight nine", "", 2),
		item("ten eleven twelve", "", 2),
		item("thirteen fourteen", "", 3),
	)
	c, _ := New(WordTokenizer{}, 6)
	chunks := c.ChunkAll(d)

	// Re-flattened chunk text must equal the input items exactly once each.
	var got []string
	for _, ch := range chunks {
		got = append(got, strings.Split(ch.Text, "\n\n")...)
	}
	if len(got) != len(d.Items) {
		t.Fatalf("expected %d items across chunks, got %d", len(d.Items), len(got))
	}
	for i, it := range d.Items {
		if got[i] != it.Text {
			t.Errorf("item %d: got %q, want %q", i, got[i], it.Text)
		}
	}
}

func TestChunksRespectBudget(t *testing.T) {
	d := doc(
		item("a b c d", ""),
		item("e f g", ""),
		item("h i", ""),
	)
	c, _ := New(WordTokenizer{}, 5)
	tok := WordTokenizer{}
	for ch := range c.Chunks(d) {
		if n := tok.Count(ch.Text); n > 5 {
			t.Errorf("chunk over budget: %d tokens in %q", n, ch.Text)
		}
	}
}

func TestChunksMergePeers(t *testing.T) {
	// Two tiny sections under different headings fit one budget; they must
	// be merged rather than emitted as two undersized chunks.
	d := doc(
		item("alpha beta", "First"),
		item("gamma delta", "Second"),
	)
	c, _ := New(WordTokenizer{}, 10)
	chunks := c.ChunkAll(d)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 merged chunk, got %d", len(chunks))
	}
	if chunks[0].Metadata.Title == nil || *chunks[0].Metadata.Title != "First" {
		t.Errorf("title should be first heading, got %v", chunks[0].Metadata.Title)
	}
}

func TestChunksHeadingBreaks(t *testing.T) {
	// Sections too large to merge stay separate at the heading boundary.
	d := doc(
		item("a b c d e f", "First"),
		item("g h i j k l", "Second"),
	)
	c, _ := New(WordTokenizer{}, 8)
	chunks := c.ChunkAll(d)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if *chunks[0].Metadata.Title != "First" || *chunks[1].Metadata.Title != "Second" {
		t.Errorf("titles=%v/%v", chunks[0].Metadata.Title, chunks[1].Metadata.Title)
	}
}

func TestChunksOversizedItem(t *testing.T) {
	big := strings.Repeat("word ", 20)
	d := doc(
		item("small one", ""),
		item(strings.TrimSpace(big), ""),
		item("small two", ""),
	)
	c, _ := New(WordTokenizer{}, 5)
	chunks := c.ChunkAll(d)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	tok := WordTokenizer{}
	if n := tok.Count(chunks[1].Text); n != 20 {
		t.Errorf("oversized chunk should be emitted whole, got %d tokens", n)
	}
}

func TestChunksPageUnion(t *testing.T) {
	d := doc(
		item("a", "", 3, 1),
		item("b", "", 1, 2),
	)
	c, _ := New(WordTokenizer{}, 10)
	chunks := c.ChunkAll(d)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	pages := chunks[0].Metadata.PageNumbers
	if len(pages) != 3 || pages[0] != 1 || pages[1] != 2 || pages[2] != 3 {
		t.Errorf("pages should be sorted de-duplicated union, got %v", pages)
	}
	if chunks[0].Metadata.Filename == nil || *chunks[0].Metadata.Filename != "test.pdf" {
		t.Errorf("filename=%v", chunks[0].Metadata.Filename)
	}
}

func TestChunksRestartable(t *testing.T) {
	d := doc(item("a b", ""), item("c d", ""))
	c, _ := New(WordTokenizer{}, 3)
	seq := c.Chunks(d)
	first := 0
	for range seq {
		first++
	}
	second := 0
	for range seq {
		second++
	}
	if first == 0 || first != second {
		t.Errorf("sequence not restartable: %d vs %d", first, second)
	}
}

func TestChunksEarlyStop(t *testing.T) {
	d := doc(item("a b c", ""), item("d e f", ""), item("g h i", ""))
	c, _ := New(WordTokenizer{}, 3)
	n := 0
	for range c.Chunks(d) {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected to stop after 1 chunk, got %d", n)
	}
}

func TestChunksEmptyDocument(t *testing.T) {
	c, _ := New(WordTokenizer{}, 10)
	if chunks := c.ChunkAll(doc()); chunks != nil {
		t.Errorf("empty document should yield no chunks, got %v", chunks)
	}
}

func TestWordTokenizer(t *testing.T) {
	tok := WordTokenizer{}
	if n := tok.Count("one  two\nthree"); n != 3 {
		t.Errorf("count=%d", n)
	}
	if n := tok.Count(""); n != 0 {
		t.Errorf("empty count=%d", n)
	}
}
