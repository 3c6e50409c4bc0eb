// Package chunker splits text bodies into overlapping token-bounded
// segments. Splitting is pure and deterministic: identical input and
// config always produce byte-identical chunks in the same order.
//
// Token counting uses the ws-1 scheme: a token is a maximal run of
// non-whitespace codepoints (unicode.IsSpace). All offsets are codepoint
// positions, never byte offsets, so multi-byte input (emoji, combining
// marks, CJK) can never produce invalid spans.
package chunker

import (
	"fmt"
	"unicode"

	"github.com/notedex/notedex/internal/domain"
	"github.com/notedex/notedex/internal/domain/chunk"
)

// Config controls the chunk window.
type Config struct {
	SizeTokens         int
	OverlapTokens      int
	PreserveBoundaries bool
}

// DefaultConfig is the standard window: 400-token chunks, 50-token overlap.
func DefaultConfig() Config {
	return Config{SizeTokens: 400, OverlapTokens: 50, PreserveBoundaries: true}
}

// Validate checks the window parameters.
func (c Config) Validate() error {
	if c.SizeTokens <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d: %w", c.SizeTokens, domain.ErrValidation)
	}
	if c.OverlapTokens < 0 {
		return fmt.Errorf("overlap must be non-negative, got %d: %w", c.OverlapTokens, domain.ErrValidation)
	}
	if c.OverlapTokens >= c.SizeTokens {
		return fmt.Errorf("overlap %d must be smaller than chunk size %d: %w",
			c.OverlapTokens, c.SizeTokens, domain.ErrValidation)
	}
	return nil
}

// boundaryLookbackDivisor bounds how far back a boundary search may go:
// at most SizeTokens/4 tokens before the raw cut.
const boundaryLookbackDivisor = 4

// token is a [start, end) rune span of one ws-1 token.
type token struct {
	start int
	end   int
}

// Split segments text into ordered chunks for one source unit.
// Empty input yields no chunks; input shorter than the window yields
// exactly one.
func Split(unitID, text string, cfg Config) ([]chunk.Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runes := []rune(text)
	tokens := tokenize(runes)
	if len(tokens) == 0 {
		return nil, nil
	}

	stride := cfg.SizeTokens - cfg.OverlapTokens
	if stride < 1 {
		stride = 1
	}

	var chunks []chunk.Chunk
	for start := 0; start < len(tokens); start += stride {
		end := start + cfg.SizeTokens
		last := end >= len(tokens)
		if last {
			end = len(tokens)
		}

		if cfg.PreserveBoundaries && !last {
			end = adjustToBoundary(runes, tokens, start, end, cfg.SizeTokens)
		}

		startRune := tokens[start].start
		endRune := tokens[end-1].end
		chunks = append(chunks, chunk.Chunk{
			UnitID:     unitID,
			Index:      len(chunks),
			StartRune:  startRune,
			EndRune:    endRune,
			Text:       string(runes[startRune:endRune]),
			TokenCount: end - start,
		})

		if last {
			break
		}
	}

	return chunks, nil
}

// tokenize returns the ws-1 token spans of the rune slice.
func tokenize(runes []rune) []token {
	var tokens []token
	start := -1
	for i, r := range runes {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{start: start, end: len(runes)})
	}
	return tokens
}

// adjustToBoundary moves the end of the window backward (never forward)
// to the nearest sentence or paragraph boundary. When no boundary exists
// within the lookback, the raw token-count cut stands.
func adjustToBoundary(runes []rune, tokens []token, start, end, size int) int {
	lookback := size / boundaryLookbackDivisor
	floor := end - lookback
	if floor <= start {
		floor = start + 1
	}

	for i := end - 1; i >= floor; i-- {
		if endsSentence(runes, tokens[i]) || followedByParagraphBreak(runes, tokens, i) {
			return i + 1
		}
	}
	return end
}

// endsSentence reports whether the token's final rune is sentence
// punctuation, optionally wrapped in a closing quote or bracket.
func endsSentence(runes []rune, t token) bool {
	for i := t.end - 1; i >= t.start; i-- {
		switch runes[i] {
		case '"', '\'', ')', ']', '”', '’':
			continue
		case '.', '!', '?', '。', '！', '？':
			return true
		default:
			return false
		}
	}
	return false
}

// followedByParagraphBreak reports whether a blank line separates this
// token from the next one.
func followedByParagraphBreak(runes []rune, tokens []token, i int) bool {
	if i+1 >= len(tokens) {
		return false
	}
	newlines := 0
	for p := tokens[i].end; p < tokens[i+1].start; p++ {
		if runes[p] == '\n' {
			newlines++
			if newlines >= 2 {
				return true
			}
		}
	}
	return false
}
