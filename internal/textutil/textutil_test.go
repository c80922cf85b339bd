package textutil

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeStem(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"keeps safe characters", "Facture_2024-03 Swisscom", 50, "Facture_2024-03 Swisscom"},
		{"drops punctuation", "bill (copy)#1!.final", 50, "bill copy1final"},
		{"keeps accents", "Rechnung März", 50, "Rechnung März"},
		{"composes decomposed accents", "Résumé", 50, "Résumé"},
		{"truncates by rune", strings.Repeat("é", 60), 50, strings.Repeat("é", 50)},
		{"empty", "!!!", 50, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeStem(tc.in, tc.max); got != tc.want {
				t.Fatalf("SanitizeStem(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Insurance", "Insurance"},
		{"Health & Care", "Health_Care"},
		{"  ", "unclassified"},
		{"../etc", "etc"},
		{"Santé", "Santé"},
	}
	for _, tc := range tests {
		if got := SanitizeToken(tc.in, "unclassified"); got != tc.want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestChunkOverlapsAndBreaksAtSentences(t *testing.T) {
	sentence := strings.Repeat("a", 39) + "."
	text := strings.Repeat(sentence, 40)

	chunks := Chunk(text, 500, 50)
	if len(chunks) < 3 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if n := utf8.RuneCountInString(chunk); n > 500 {
			t.Fatalf("chunk %d has %d runes", i, n)
		}
		if i < len(chunks)-1 && !strings.HasSuffix(chunk, ".") {
			t.Fatalf("chunk %d should end at a sentence boundary: %q", i, chunk[len(chunk)-10:])
		}
	}
}

func TestChunkShortAndEmpty(t *testing.T) {
	if got := Chunk("   ", 500, 50); len(got) != 0 {
		t.Fatalf("expected no chunks for blank text, got %v", got)
	}
	got := Chunk("short text", 500, 50)
	if len(got) != 1 || got[0] != "short text" {
		t.Fatalf("unexpected chunks: %v", got)
	}
}

func TestChunkWithoutBoundariesUsesFullWindows(t *testing.T) {
	text := strings.Repeat("x", 1200)
	chunks := Chunk(text, 500, 50)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if utf8.RuneCountInString(chunks[0]) != 500 {
		t.Fatalf("expected full first window, got %d", len(chunks[0]))
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 1}
	if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors: got %v", got)
	}
	if got := CosineSimilarity(a, []float32{0, 1, 0}); got != 0 {
		t.Fatalf("orthogonal vectors: got %v", got)
	}
	if got := CosineSimilarity(a, []float32{1, 0}); got != 0 {
		t.Fatalf("length mismatch: got %v", got)
	}
	if got := CosineSimilarity([]float32{0, 0, 0}, a); got != 0 {
		t.Fatalf("zero vector: got %v", got)
	}
}
