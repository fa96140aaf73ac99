package sentences

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCatalog(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sentences.txt")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("failed to write sentences file: %v", err)
	}
	return path
}

func TestLoadParsesCategoriesAndComments(t *testing.T) {
	t.Parallel()

	path := writeCatalog(t, `
# greetings first
[Greeting] Good morning!
Just a plain line.

[story]   Once upon a time.
Just a plain line.
`)

	catalog, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	all := catalog.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 sentences (duplicate dropped), got %d: %+v", len(all), all)
	}
	if all[0] != (Sentence{Category: "greeting", Text: "Good morning!"}) {
		t.Fatalf("unexpected first sentence: %+v", all[0])
	}
	if all[1].Category != DefaultCategory {
		t.Fatalf("plain line should use default category, got %q", all[1].Category)
	}
	if got := strings.Join(catalog.Categories(), ","); got != "greeting,general,story" {
		t.Fatalf("unexpected categories: %s", got)
	}
	if story := catalog.InCategory("STORY"); len(story) != 1 || story[0].Text != "Once upon a time." {
		t.Fatalf("unexpected story sentences: %+v", story)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	for _, path := range []string{"", filepath.Join(t.TempDir(), "missing.txt")} {
		catalog, err := Load(path)
		if err != nil {
			t.Fatalf("load %q failed: %v", path, err)
		}
		if catalog.Len() != len(defaultSentences) {
			t.Fatalf("expected defaults for %q, got %d sentences", path, catalog.Len())
		}
	}
}

func TestLoadCommentOnlyFileFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	catalog, err := Load(writeCatalog(t, "# nothing here\n\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if catalog.Len() != len(defaultSentences) {
		t.Fatalf("expected defaults, got %d", catalog.Len())
	}
}

func TestLoadRejectsMalformedCategory(t *testing.T) {
	t.Parallel()

	for _, line := range []string{"[greeting Hello", "[] Hello", "[greeting]"} {
		_, err := Load(writeCatalog(t, line+"\n"))
		if err == nil || !strings.Contains(err.Error(), "line 1") {
			t.Fatalf("expected line error for %q, got %v", line, err)
		}
	}
}

func TestCatalogAtWraps(t *testing.T) {
	t.Parallel()

	catalog, err := Load(writeCatalog(t, "one\ntwo\nthree\n"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if got := catalog.At(4).Text; got != "two" {
		t.Fatalf("expected wraparound to two, got %q", got)
	}
	if got := catalog.At(-1).Text; got != "three" {
		t.Fatalf("expected negative index to wrap to three, got %q", got)
	}
	if (&Catalog{}).At(0) != (Sentence{}) {
		t.Fatalf("empty catalog should return zero sentence")
	}
}

type upperParser struct{}

func (upperParser) CanParse(line string) bool { return strings.HasPrefix(line, "!") }

func (upperParser) Parse(line string) (Sentence, error) {
	return Sentence{Category: "shout", Text: strings.ToUpper(strings.TrimPrefix(line, "!"))}, nil
}

func TestLoadWithCustomParsers(t *testing.T) {
	t.Parallel()

	catalog, err := LoadWithParsers(writeCatalog(t, "!hey\n"), []LineParser{upperParser{}})
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if all := catalog.All(); len(all) != 1 || all[0].Text != "HEY" {
		t.Fatalf("unexpected sentences: %+v", all)
	}

	if _, err := LoadWithParsers(writeCatalog(t, "plain\n"), []LineParser{upperParser{}}); err == nil {
		t.Fatalf("expected unsupported format error")
	}
}
