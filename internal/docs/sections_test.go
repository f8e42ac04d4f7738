package docs

import (
    "strings"
    "testing"
)

const sample = `# Project

Intro paragraph.

## Background

This repository targets the JU and EI chip families.
Target environments are listed below.

## Definition of Done (DoD)

- Code reviewed and merged
- Regression tests pass on target hardware
- Release notes updated

## Common Acronyms

- FW: firmware
`

func TestParse_ExtractsSectionsByHeading(t *testing.T) {
    s := Parse([]byte(sample))

    dod, ok := s.DoD()
    if !ok { t.Fatalf("expected DoD section") }
    if !strings.Contains(dod, "Regression tests pass") {
        t.Fatalf("DoD body missing content: %q", dod)
    }
    if strings.Contains(dod, "Common Acronyms") || strings.Contains(dod, "FW: firmware") {
        t.Fatalf("DoD body leaked into next section: %q", dod)
    }

    bg, ok := s.Background()
    if !ok { t.Fatalf("expected Background section") }
    if !strings.HasPrefix(bg, "This repository targets") {
        t.Fatalf("unexpected background body: %q", bg)
    }
}

func TestParse_MissingSectionReportsAbsent(t *testing.T) {
    s := Parse([]byte("# Title\n\nNo level-2 headings here.\n"))
    if _, ok := s.DoD(); ok { t.Fatalf("expected absent DoD") }
    if got := s.Titles(); len(got) != 0 { t.Fatalf("expected no sections, got %v", got) }
}

func TestParse_HeadingTextMatchIsExact(t *testing.T) {
    s := Parse([]byte(sample))
    if _, ok := s.Get("Definition of Done"); ok {
        t.Fatalf("partial heading must not match")
    }
    if _, ok := s.Get("Definition of Done (DoD)"); !ok {
        t.Fatalf("full heading must match")
    }
}
