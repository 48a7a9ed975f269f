// Package fingerprint implements the content-addressed digest that keys the
// Script Cache: a canonical hash of a function's normalized text, its
// probe plan, the target language, and the lesson corpus version. Two
// observably equivalent functions must fingerprint identically even if they
// live in files that differ only in leading content; two functions that
// differ in any semantically relevant way must not collide.
package fingerprint

import (
	"encoding/hex"
	"strconv"
	"strings"

	"scriptforge/internal/logging"
	"scriptforge/internal/model"

	"github.com/zeebo/blake3"
)

// Digest is a 128-bit (16-byte) fingerprint.
// The full digest is the cache index key; Short returns the first 8 hex
// characters for use in filenames.
type Digest [16]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Short returns the hex-short-form used for cache filenames.
func (d Digest) Short() string {
	s := d.String()
	return s[:8]
}

// Compute produces the fingerprint for fn under plan, for the given
// language and lesson corpus version, per the normalization rules below.
func Compute(fn model.FunctionRecord, lang model.Language, plan model.ProbePlan, lessonCorpusVersion string) Digest {
	normalized := normalize(string(fn.BodyBytes))

	h := blake3.New()
	h.Write([]byte("scriptforge-fingerprint-v1\x00"))
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(string(lang)))
	h.Write([]byte{0})
	h.Write([]byte(lessonCorpusVersion))
	h.Write([]byte{0})
	writePlan(h, fn, plan)

	sum := h.Sum(nil)
	var out Digest
	copy(out[:], sum[:16])

	logging.FingerprintDebug("computed fingerprint %s for %s (%s, %d sites)", out.Short(), fn.Name, lang, len(plan.Sites))
	return out
}

// normalize implements the line-ending and trailing-whitespace rules: LF
// line endings, trailing whitespace per line stripped, everything else
// (including internal whitespace, indentation, and comments) preserved
// verbatim since those may be semantically meaningful or carry hints.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}

// writePlan hashes the probe plan's kinds and positions relative to the
// function's start line, not absolute file line numbers, so a function's
// fingerprint is stable across files that differ only in leading content.
func writePlan(h *blake3.Hasher, fn model.FunctionRecord, plan model.ProbePlan) {
	sorted := plan
	sorted.Sort()
	for _, site := range sorted.Sites {
		relativeLine := site.Line - fn.StartLine
		h.Write([]byte(string(site.Kind)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(relativeLine)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(site.Column)))
		h.Write([]byte{0})
		h.Write([]byte(string(site.Anchor)))
		h.Write([]byte{0})
	}
}
