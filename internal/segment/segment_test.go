package segment

import (
	"strings"
	"testing"
)

func TestSplitSentenceBoundaries(t *testing.T) {
	chunks := Split("Hello world. This is a test. Another sentence here.", 20)

	want := []string{"Hello world.", "This is a test.", "Another sentence here."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %v", len(want), len(chunks), chunks)
	}
	for i, w := range want {
		if chunks[i] != w {
			t.Errorf("chunk %d: expected %q, got %q", i, w, chunks[i])
		}
	}
}

func TestSplitPacksSentences(t *testing.T) {
	chunks := Split("One two. Three four. Five six.", 25)

	want := []string{"One two. Three four.", "Five six."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %v", len(want), len(chunks), chunks)
	}
	for i, w := range want {
		if chunks[i] != w {
			t.Errorf("chunk %d: expected %q, got %q", i, w, chunks[i])
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	if chunks := Split("", 100); chunks != nil {
		t.Errorf("expected nil for empty input, got %v", chunks)
	}
	if chunks := Split("   \n\t  ", 100); chunks != nil {
		t.Errorf("expected nil for whitespace input, got %v", chunks)
	}
}

func TestSplitOversizedSentence(t *testing.T) {
	long := "This single sentence is far longer than the chunk budget allows."
	chunks := Split("Short one. "+long+" Tail.", 20)

	found := false
	for _, c := range chunks {
		if c == long {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized sentence was split: %v", chunks)
	}
	for _, c := range chunks {
		if c != long && len(c) > 20 {
			t.Errorf("chunk exceeds budget without being an oversized sentence: %q", c)
		}
	}
}

func TestSplitNormalizesWhitespace(t *testing.T) {
	chunks := Split("Hello   world.\n\nThis  is\ta test.", 100)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d: %v", len(chunks), chunks)
	}
	if chunks[0] != "Hello world. This is a test." {
		t.Errorf("whitespace not normalized: %q", chunks[0])
	}
}

func TestSplitSizeBound(t *testing.T) {
	text := "The quick brown fox jumps. Over the lazy dog! Does it really? " +
		"Yes it does. Again and again. Until the test is satisfied."
	for _, budget := range []int{20, 40, 80, 200} {
		for _, c := range Split(text, budget) {
			// A chunk holding a single sentence may legitimately exceed the
			// budget; only packed chunks are bound by it.
			if len(c) > budget && len(splitSentences(c)) > 1 {
				t.Errorf("budget %d: packed chunk too long (%d): %q", budget, len(c), c)
			}
			if strings.TrimSpace(c) == "" {
				t.Errorf("budget %d: empty chunk produced", budget)
			}
		}
	}
}

func TestSplitNoDataLoss(t *testing.T) {
	text := "  The quick   brown fox jumps.  Over the lazy dog!  Does it work?  It does. "
	normalized := strings.Join(strings.Fields(text), " ")

	chunks := Split(text, 30)
	if rejoined := strings.Join(chunks, " "); rejoined != normalized {
		t.Errorf("rejoined chunks differ from normalized input:\n got %q\nwant %q", rejoined, normalized)
	}
}

func TestSplitIdempotent(t *testing.T) {
	text := "First sentence here. Second one follows! A third? And a fourth to round it out."
	first := Split(text, 35)

	second := Split(strings.Join(first, " "), 35)
	if len(first) != len(second) {
		t.Fatalf("re-segmentation changed chunk count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("chunk %d changed on re-segmentation: %q vs %q", i, first[i], second[i])
		}
	}
}

func TestSplitEllipsis(t *testing.T) {
	chunks := Split("He waited... Then he spoke.", 60)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %v", chunks)
	}
	if chunks[0] != "He waited... Then he spoke." {
		t.Errorf("unexpected chunk: %q", chunks[0])
	}
}
