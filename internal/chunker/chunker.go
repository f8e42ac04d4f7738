// Package chunker splits raw text into bounded-size overlapping segments for
// embedding. Splitting prefers a separator (newline by default) and falls
// back to hard character cuts when none is found inside the window.
package chunker

import "strings"

type Splitter struct {
    ChunkSize int
    Overlap   int
    Separator string
}

func New(size, overlap int) Splitter {
    return Splitter{ChunkSize: size, Overlap: overlap, Separator: "\n"}
}

// Split produces a finite ordered sequence of substrings. Every chunk is at
// most ChunkSize runes long; when a hard cut is taken, consecutive chunks
// share Overlap runes. Empty or whitespace-only input yields no chunks.
func (s Splitter) Split(text string) []string {
    if strings.TrimSpace(text) == "" { return nil }

    size := s.ChunkSize
    if size <= 0 { size = 500 }
    ov := s.Overlap
    if ov < 0 { ov = 0 }
    if ov >= size { ov = size - 1 }

    r := []rune(text)
    sep := []rune(s.Separator)

    var out []string
    i := 0
    for i < len(r) {
        end := i + size
        if end >= len(r) {
            if c := strings.TrimSpace(string(r[i:])); c != "" { out = append(out, c) }
            break
        }

        cut := end
        sepBreak := false
        if j := lastIndex(r[i:end], sep); j > 0 {
            cut = i + j
            sepBreak = true
        }

        if c := strings.TrimSpace(string(r[i:cut])); c != "" { out = append(out, c) }

        var next int
        if sepBreak {
            next = cut + len(sep)
        } else {
            next = cut - ov
        }
        if next <= i { next = cut }
        if next <= i { next = i + 1 }
        i = next
    }
    return out
}

// lastIndex returns the rune offset of the last occurrence of sep in window,
// or -1 when absent.
func lastIndex(window, sep []rune) int {
    if len(sep) == 0 || len(sep) > len(window) { return -1 }
    for j := len(window) - len(sep); j >= 0; j-- {
        match := true
        for k := range sep {
            if window[j+k] != sep[k] { match = false; break }
        }
        if match { return j }
    }
    return -1
}
