// Package speech prepares response text for speech synthesis.
package speech

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	phonemeOpenPrefix = "<phoneme"
	phonemeClose      = "</phoneme>"
)

// Lexicon maps literal terms to their phonetic (IPA) spelling. It is loaded
// once at startup and read concurrently without synchronization.
type Lexicon struct {
	terms map[string]string
}

// NewLexicon creates a lexicon from a literal-to-phonetic mapping.
func NewLexicon(terms map[string]string) Lexicon {
	cloned := make(map[string]string, len(terms))
	for term, phonetic := range terms {
		if term == "" {
			continue
		}
		cloned[term] = phonetic
	}
	return Lexicon{terms: cloned}
}

// LoadLexicon reads a JSON object of literal-to-phonetic pairs from path.
// An empty path yields an empty lexicon.
func LoadLexicon(path string) (Lexicon, error) {
	if path == "" {
		return NewLexicon(nil), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Lexicon{}, fmt.Errorf("failed to read pronunciation lexicon: %w", err)
	}

	var terms map[string]string
	if err := json.Unmarshal(raw, &terms); err != nil {
		return Lexicon{}, fmt.Errorf("failed to parse pronunciation lexicon: %w", err)
	}

	return NewLexicon(terms), nil
}

// Len reports the number of known terms.
func (l Lexicon) Len() int { return len(l.terms) }

// Annotate wraps every known term in a phoneme annotation. Spans that
// already carry an annotation are left untouched, so applying Annotate to
// its own output changes nothing.
func (l Lexicon) Annotate(text string) string {
	if len(l.terms) == 0 {
		return text
	}

	var annotated strings.Builder
	rest := text
	for {
		start := strings.Index(rest, phonemeOpenPrefix)
		if start < 0 {
			annotated.WriteString(l.annotatePlain(rest))
			break
		}

		annotated.WriteString(l.annotatePlain(rest[:start]))

		end := strings.Index(rest[start:], phonemeClose)
		if end < 0 {
			annotated.WriteString(rest[start:])
			break
		}
		end = start + end + len(phonemeClose)
		annotated.WriteString(rest[start:end])
		rest = rest[end:]
	}

	return annotated.String()
}

func (l Lexicon) annotatePlain(text string) string {
	for term, phonetic := range l.terms {
		annotation := `<phoneme alphabet="x-ipa" ph="` + phonetic + `">` + term + phonemeClose
		text = strings.ReplaceAll(text, term, annotation)
	}
	return text
}

// Markup annotates known terms and wraps the result in a speak envelope for
// the synthesis backend.
func (l Lexicon) Markup(text string) string {
	return "<speak>" + l.Annotate(text) + "</speak>"
}
