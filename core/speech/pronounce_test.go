package speech

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAnnotateWrapsKnownTermsOnce(t *testing.T) {
	lexicon := NewLexicon(map[string]string{"manatee": "/mænəˌti/"})

	annotated := lexicon.Annotate("I saw a manatee.")

	expected := `<phoneme alphabet="x-ipa" ph="/mænəˌti/">manatee</phoneme>`
	if got := strings.Count(annotated, expected); got != 1 {
		t.Fatalf("expected exactly one annotation, got %d in %q", got, annotated)
	}
}

func TestAnnotateIsIdempotent(t *testing.T) {
	lexicon := NewLexicon(map[string]string{"manatee": "/mænəˌti/"})

	once := lexicon.Annotate("I saw a manatee near a manatee calf.")
	twice := lexicon.Annotate(once)

	if once != twice {
		t.Fatalf("expected re-annotation to change nothing:\nonce:  %q\ntwice: %q", once, twice)
	}
}

func TestAnnotateHandlesMultipleTermsIndependently(t *testing.T) {
	lexicon := NewLexicon(map[string]string{
		"manatee":   "/mænəˌti/",
		"tulivieja": "/tuliˈvjexa/",
	})

	annotated := lexicon.Annotate(lexicon.Annotate("The tulivieja watches the manatee."))

	if got := strings.Count(annotated, "<phoneme"); got != 2 {
		t.Fatalf("expected two annotations, got %d in %q", got, annotated)
	}
}

func TestAnnotateLeavesUnknownTextUntouched(t *testing.T) {
	lexicon := NewLexicon(map[string]string{"manatee": "/mænəˌti/"})

	input := "The mangrove roots shelter young fish."
	if got := lexicon.Annotate(input); got != input {
		t.Fatalf("expected text without known terms to pass through, got %q", got)
	}
}

func TestMarkupWrapsSpeakEnvelope(t *testing.T) {
	lexicon := NewLexicon(nil)

	got := lexicon.Markup("hello")
	if got != "<speak>hello</speak>" {
		t.Fatalf("expected speak envelope, got %q", got)
	}
}

func TestLoadLexicon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pronunciations.json")
	if err := os.WriteFile(path, []byte(`{"manatee": "/mænəˌti/"}`), 0o600); err != nil {
		t.Fatalf("failed to write lexicon fixture: %v", err)
	}

	lexicon, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("expected lexicon to load, got %v", err)
	}
	if lexicon.Len() != 1 {
		t.Fatalf("expected one term, got %d", lexicon.Len())
	}
}

func TestLoadLexiconEmptyPath(t *testing.T) {
	lexicon, err := LoadLexicon("")
	if err != nil {
		t.Fatalf("expected empty path to yield empty lexicon, got %v", err)
	}
	if lexicon.Len() != 0 {
		t.Fatalf("expected empty lexicon, got %d terms", lexicon.Len())
	}
}
