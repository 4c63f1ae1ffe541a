package ingestion_engine

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/lectern-ai/lectern/internal/core"
)

// ChunkerConfig tunes the sliding-window split.
//
// TargetSize: approximate characters per chunk.
// Overlap:    fraction of TargetSize carried from a chunk's tail into the
//             next chunk so context survives the cut.
type ChunkerConfig struct {
	TargetSize int
	Overlap    float64
}

// Chunk is one passage produced by the splitter, position-stable within its
// document. Locator is the nearest preceding page/slide/sheet marker.
type Chunk struct {
	Index   int
	Text    string
	Locator string
}

// unit is an indivisible piece of source text: a paragraph, or a sentence
// when the paragraph overflows the target size. off is the byte offset in
// the original text, used to resolve the locator.
type unit struct {
	off  int
	text string
}

var sentenceRe = regexp.MustCompile(`[^.!?]+[.!?]+`)

// SplitText splits extracted text into overlapping chunks. Deterministic:
// the same text and config always yield the identical ordered sequence.
func SplitText(text string, markers []core.Marker, cfg ChunkerConfig) []Chunk {
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = 1000
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}
	if cfg.Overlap > 0.5 {
		cfg.Overlap = 0.5
	}

	units := splitUnits(text, cfg.TargetSize)
	if len(units) == 0 {
		return nil
	}

	overlapChars := int(float64(cfg.TargetSize) * cfg.Overlap)

	var (
		chunks []Chunk
		buf    []unit
		size   int
		seeded int // units carried over from the previous flush
	)

	flush := func() {
		parts := make([]string, len(buf))
		for i, u := range buf {
			parts[i] = u.text
		}
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Text:    strings.Join(parts, "\n"),
			Locator: locatorFor(markers, buf[0].off),
		})

		// Seed the next chunk with tail units summing to ~overlapChars.
		// The first unit is never carried, so the window always advances.
		var tail []unit
		remain := overlapChars
		for i := len(buf) - 1; i >= 1 && remain > 0; i-- {
			tail = append([]unit{buf[i]}, tail...)
			remain -= len(buf[i].text)
		}
		buf = tail
		seeded = len(tail)
		size = 0
		for _, u := range buf {
			size += len(u.text)
		}
	}

	for _, u := range units {
		buf = append(buf, u)
		size += len(u.text)
		if size >= cfg.TargetSize {
			flush()
		}
	}
	// Emit the tail only if it holds units beyond the carried-over seed;
	// otherwise its content is already part of the last chunk.
	if len(buf) > seeded {
		parts := make([]string, len(buf))
		for i, u := range buf {
			parts[i] = u.text
		}
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Text:    strings.Join(parts, "\n"),
			Locator: locatorFor(markers, buf[0].off),
		})
	}
	return chunks
}

// splitUnits breaks text into paragraphs, paragraphs over maxLen into
// sentences, and oversized sentences at rune-safe hard boundaries.
func splitUnits(text string, maxLen int) []unit {
	var units []unit
	pos := 0
	for pos < len(text) {
		end := len(text)
		if i := strings.Index(text[pos:], "\n\n"); i >= 0 {
			end = pos + i
		}
		para := text[pos:end]
		trimmed := strings.TrimSpace(para)
		if trimmed != "" {
			lead := len(para) - len(strings.TrimLeft(para, " \t\r\n"))
			units = append(units, splitOversized(pos+lead, trimmed, maxLen)...)
		}
		if end == len(text) {
			break
		}
		pos = end + 2
	}
	return units
}

func splitOversized(off int, s string, maxLen int) []unit {
	if len(s) <= maxLen {
		return []unit{{off: off, text: s}}
	}

	var units []unit
	last := 0
	for _, loc := range sentenceRe.FindAllStringIndex(s, -1) {
		sent := strings.TrimSpace(s[loc[0]:loc[1]])
		if sent != "" {
			units = append(units, hardSplit(off+loc[0], sent, maxLen)...)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(s[last:]); rest != "" {
		units = append(units, hardSplit(off+last, rest, maxLen)...)
	}
	return units
}

func hardSplit(off int, s string, maxLen int) []unit {
	var units []unit
	for len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		units = append(units, unit{off: off, text: s[:cut]})
		off += cut
		s = s[cut:]
	}
	if s != "" {
		units = append(units, unit{off: off, text: s})
	}
	return units
}

// locatorFor returns the label of the marker with the greatest offset not
// beyond off.
func locatorFor(markers []core.Marker, off int) string {
	label := ""
	for _, m := range markers {
		if m.Offset > off {
			break
		}
		label = m.Label
	}
	return label
}
