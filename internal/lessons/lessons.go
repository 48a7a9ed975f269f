// Package lessons implements the Lesson Corpus Loader (C11): a read-only,
// load-once-per-run collection of free-text notes that are handed to the
// generator and refactor prompts as hints. The corpus never participates in
// transformation logic directly - it is pure input to the oracle.
package lessons

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"

	"github.com/zeebo/blake3"
)

// Note is a single lesson file's contents, identified by its stable
// filename relative to the language directory it lives in.
type Note struct {
	Filename string
	Text     string
}

// Corpus is an immutable, per-language view over a lesson directory tree,
// loaded once at startup and shared across all workers for the run.
type Corpus struct {
	root    string
	byLang  map[model.Language][]Note
	version string
}

// Load walks root/<language>/*.md (or any extension) for every known
// language and returns a Corpus. A missing root directory, or a missing
// per-language subdirectory, yields an empty corpus for that language
// rather than an error: the oracle path is optional, and so is guidance
// for it.
func Load(root string) (*Corpus, error) {
	c := &Corpus{
		root:   root,
		byLang: make(map[model.Language][]Note),
	}

	if root == "" {
		c.version = c.computeVersion()
		return c, nil
	}

	if _, err := os.Stat(root); os.IsNotExist(err) {
		logging.LessonsDebug("lesson corpus root %s does not exist, using empty corpus", root)
		c.version = c.computeVersion()
		return c, nil
	}

	for _, lang := range model.KnownLanguages {
		dir := filepath.Join(root, string(lang))
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		var names []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			names = append(names, e.Name())
		}
		// Lexicographic by filename for determinism.
		sort.Strings(names)

		var notes []Note
		for _, name := range names {
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				logging.Get(logging.CategoryLessons).Warn("failed to read lesson note %s: %v", name, err)
				continue
			}
			notes = append(notes, Note{Filename: name, Text: string(data)})
		}
		if len(notes) > 0 {
			c.byLang[lang] = notes
			logging.Lessons("loaded %d lesson notes for %s", len(notes), lang)
		}
	}

	c.version = c.computeVersion()
	return c, nil
}

// Empty returns a corpus with no notes for any language, used when no
// lesson corpus root is configured.
func Empty() *Corpus {
	c := &Corpus{byLang: make(map[model.Language][]Note)}
	c.version = c.computeVersion()
	return c
}

// Get returns the ordered lesson notes for language. The returned slice
// must not be mutated by the caller; the corpus is shared immutably.
func (c *Corpus) Get(lang model.Language) []Note {
	return c.byLang[lang]
}

// Version returns a stable token that changes whenever the corpus content
// changes; it is folded into every fingerprint so that updating a
// lesson note invalidates the cache entries it could have influenced.
func (c *Corpus) Version() string {
	return c.version
}

// Render joins a language's notes into a single block suitable for
// inclusion in an oracle prompt, each note prefixed by its filename so the
// model can cite which lesson it is following.
func (c *Corpus) Render(lang model.Language) string {
	notes := c.byLang[lang]
	if len(notes) == 0 {
		return ""
	}
	var b strings.Builder
	for _, n := range notes {
		b.WriteString("# ")
		b.WriteString(n.Filename)
		b.WriteString("\n")
		b.WriteString(n.Text)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// computeVersion hashes every note's filename and content, in the same
// lexicographic order they were loaded in, so the version token is stable
// across runs over unchanged content and changes whenever any note is
// added, removed, or edited.
func (c *Corpus) computeVersion() string {
	h := blake3.New()
	for _, lang := range model.KnownLanguages {
		notes := c.byLang[lang]
		for _, n := range notes {
			h.Write([]byte(lang))
			h.Write([]byte{0})
			h.Write([]byte(n.Filename))
			h.Write([]byte{0})
			h.Write([]byte(n.Text))
			h.Write([]byte{0})
		}
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
