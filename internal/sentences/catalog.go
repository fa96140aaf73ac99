// Package sentences loads the sample sentences users read aloud while
// recording voice samples.
package sentences

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// DefaultCategory is used for lines without a [category] prefix.
const DefaultCategory = "general"

// Sentence is one prompt shown on the recording screen.
type Sentence struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// LineParser parses one catalog line into a sentence.
type LineParser interface {
	CanParse(line string) bool
	Parse(line string) (Sentence, error)
}

// Catalog is an immutable, ordered list of sentences.
type Catalog struct {
	sentences []Sentence
}

var defaultSentences = []Sentence{
	{Category: DefaultCategory, Text: "Hello, it's me. I hope you're having a lovely day."},
	{Category: DefaultCategory, Text: "I was just thinking about you and wanted to write."},
	{Category: DefaultCategory, Text: "Take care of yourself, and write back soon."},
	{Category: "greeting", Text: "Good morning! Did you sleep well?"},
	{Category: "greeting", Text: "Happy birthday! I wish I could be there with you."},
	{Category: "story", Text: "Let me tell you about what happened at the market today."},
	{Category: "story", Text: "Do you remember the summer we spent by the lake?"},
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return &Catalog{sentences: append([]Sentence(nil), defaultSentences...)}
}

// Load reads a catalog file. An empty path or a missing file yields the
// built-in catalog.
func Load(path string) (*Catalog, error) {
	return LoadWithParsers(path, defaultLineParsers())
}

// LoadWithParsers allows parser extension without catalog changes.
func LoadWithParsers(path string, parsers []LineParser) (*Catalog, error) {
	if len(parsers) == 0 {
		parsers = defaultLineParsers()
	}
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read sentences file %q: %w", path, err)
	}

	sentences, err := parseCatalog(string(contents), parsers)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sentences file %q: %w", path, err)
	}
	if len(sentences) == 0 {
		return Default(), nil
	}
	return &Catalog{sentences: sentences}, nil
}

// All returns every sentence in file order.
func (c *Catalog) All() []Sentence {
	return append([]Sentence(nil), c.sentences...)
}

func (c *Catalog) Len() int {
	return len(c.sentences)
}

// Categories returns the distinct categories in first-seen order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, s := range c.sentences {
		if _, ok := seen[s.Category]; ok {
			continue
		}
		seen[s.Category] = struct{}{}
		out = append(out, s.Category)
	}
	return out
}

// InCategory returns the sentences of one category.
func (c *Catalog) InCategory(category string) []Sentence {
	var out []Sentence
	for _, s := range c.sentences {
		if strings.EqualFold(s.Category, category) {
			out = append(out, s)
		}
	}
	return out
}

// At returns the sentence at index, wrapping around so callers can cycle
// through prompts indefinitely.
func (c *Catalog) At(index int) Sentence {
	if len(c.sentences) == 0 {
		return Sentence{}
	}
	index %= len(c.sentences)
	if index < 0 {
		index += len(c.sentences)
	}
	return c.sentences[index]
}

func parseCatalog(contents string, parsers []LineParser) ([]Sentence, error) {
	lines := strings.Split(contents, "\n")
	sentences := make([]Sentence, 0, len(lines))
	seen := make(map[string]struct{})

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			sentence, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			if _, dup := seen[sentence.Text]; !dup {
				seen[sentence.Text] = struct{}{}
				sentences = append(sentences, sentence)
			}
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported sentence format", index+1)
		}
	}

	return sentences, nil
}

func defaultLineParsers() []LineParser {
	return []LineParser{categoryLineParser{}, plainLineParser{}}
}

type categoryLineParser struct{}

func (categoryLineParser) CanParse(line string) bool {
	return strings.HasPrefix(line, "[")
}

func (categoryLineParser) Parse(line string) (Sentence, error) {
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return Sentence{}, errors.New("unterminated category")
	}
	category := strings.ToLower(strings.TrimSpace(line[1:end]))
	if category == "" {
		return Sentence{}, errors.New("category cannot be empty")
	}
	text := strings.TrimSpace(line[end+1:])
	if text == "" {
		return Sentence{}, errors.New("sentence text cannot be empty")
	}
	return Sentence{Category: category, Text: text}, nil
}

type plainLineParser struct{}

func (plainLineParser) CanParse(string) bool { return true }

func (plainLineParser) Parse(line string) (Sentence, error) {
	return Sentence{Category: DefaultCategory, Text: line}, nil
}
