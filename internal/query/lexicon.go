package query

import (
	_ "embed"
	"encoding/json"
	"os"
	"strings"

	"github.com/shubhsaxena/nearby-assistant/internal/apperrors"
)

//go:embed lexicon/default.json
var defaultLexicon []byte

// LexicalModel is a word-class lexicon keyed by lowercased word and by stem.
type LexicalModel struct {
	entries map[string][]Tag
}

// DefaultLexicalModel parses the lexicon bundled with the binary.
func DefaultLexicalModel() (*LexicalModel, error) {
	return ParseLexicalModel(defaultLexicon)
}

// LoadLexicalModel reads a lexicon file; an empty path selects the bundled one.
func LoadLexicalModel(path string) (*LexicalModel, error) {
	if path == "" {
		return DefaultLexicalModel()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.ModelLoadFailure("reading lexical model "+path, err)
	}
	return ParseLexicalModel(data)
}

// ParseLexicalModel expects an object of word class to word list.
func ParseLexicalModel(data []byte) (*LexicalModel, error) {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.ModelLoadFailure("parsing lexical model", err)
	}
	if len(raw) == 0 {
		return nil, apperrors.ModelLoadFailure("lexical model is empty", nil)
	}

	m := &LexicalModel{entries: make(map[string][]Tag)}
	for class, words := range raw {
		tag := Tag(class)
		for _, w := range words {
			for _, word := range tokenize(strings.ToLower(w)) {
				m.insert(word, tag)
				m.insert(stem(word), tag)
			}
		}
	}
	return m, nil
}

func (m *LexicalModel) insert(key string, tag Tag) {
	for _, t := range m.entries[key] {
		if t == tag {
			return
		}
	}
	m.entries[key] = append(m.entries[key], tag)
}

func (m *LexicalModel) lookup(word string) []Tag {
	lower := strings.ToLower(word)
	if tags, ok := m.entries[lower]; ok {
		return tags
	}
	return m.entries[stem(lower)]
}

// Knows reports whether the word carries any word class in the lexicon.
func (m *LexicalModel) Knows(word string) bool {
	return len(m.lookup(word)) > 0
}
