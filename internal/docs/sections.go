// Package docs loads the static project reference document (README-style
// markdown) and exposes its level-2 sections by heading text. The Definition
// of Done section grounds generated acceptance criteria.
package docs

import (
    "fmt"
    "os"
    "strings"

    "github.com/yuin/goldmark"
    "github.com/yuin/goldmark/ast"
    "github.com/yuin/goldmark/text"
)

const (
    dodHeading        = "Definition of Done (DoD)"
    backgroundHeading = "Background"
)

// Sections maps level-2 heading text to the raw body beneath it, built once
// per document and queried by key.
type Sections struct {
    order []string
    body  map[string]string
}

func ParseFile(path string) (*Sections, error) {
    data, err := os.ReadFile(path)
    if err != nil { return nil, fmt.Errorf("docs: read %s: %w", path, err) }
    return Parse(data), nil
}

func Parse(src []byte) *Sections {
    md := goldmark.New()
    root := md.Parser().Parse(text.NewReader(src))

    type heading struct {
        title string
        at    int // byte offset of the heading text within src
    }
    var hs []heading
    for n := root.FirstChild(); n != nil; n = n.NextSibling() {
        h, ok := n.(*ast.Heading)
        if !ok || h.Level != 2 { continue }
        lines := h.Lines()
        if lines.Len() == 0 { continue }
        seg := lines.At(0)
        title := strings.TrimSpace(string(seg.Value(src)))
        if title == "" { continue }
        hs = append(hs, heading{title: title, at: seg.Start})
    }

    s := &Sections{body: make(map[string]string, len(hs))}
    for i, h := range hs {
        bodyStart := lineEnd(src, h.at)
        bodyEnd := len(src)
        if i+1 < len(hs) { bodyEnd = lineStart(src, hs[i+1].at) }
        body := strings.TrimSpace(string(src[bodyStart:bodyEnd]))
        if _, dup := s.body[h.title]; dup { continue }
        s.order = append(s.order, h.title)
        s.body[h.title] = body
    }
    return s
}

func (s *Sections) Get(title string) (string, bool) {
    body, ok := s.body[title]
    return body, ok
}

func (s *Sections) Titles() []string { return s.order }

// DoD returns the Definition of Done body, or false when the document does
// not carry one.
func (s *Sections) DoD() (string, bool) { return s.Get(dodHeading) }

func (s *Sections) Background() (string, bool) { return s.Get(backgroundHeading) }

// lineEnd returns the offset just past the line containing pos.
func lineEnd(src []byte, pos int) int {
    for i := pos; i < len(src); i++ {
        if src[i] == '\n' { return i + 1 }
    }
    return len(src)
}

// lineStart returns the offset of the first byte of the line containing pos.
func lineStart(src []byte, pos int) int {
    for i := pos - 1; i >= 0; i-- {
        if src[i] == '\n' { return i + 1 }
    }
    return 0
}
