/* Copyright (c) 2025 Sherry Ismail
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "strings"

    "github.com/sherryismail/AI-Agent-JIRA/internal/domain"
)

// Analyze runs the two-stage pipeline for one ticket: classify it into a work
// category, then draft acceptance criteria grounded on the most similar
// indexed chunks. External failures never panic the caller; they come back as
// an error-string recommendation so a batch can keep going.
func (s *Service) Analyze(ctx context.Context, key string) domain.Recommendation {
    rec := domain.Recommendation{TicketKey: key}

    ticket, err := s.jira.Issue(ctx, key)
    if err != nil { return s.failed(rec, key, err) }

    hits := s.relevantContext(ctx, ticket)
    for _, h := range hits {
        if h.TicketKey != "" && !contains(rec.ContextKeys, h.TicketKey) {
            rec.ContextKeys = append(rec.ContextKeys, h.TicketKey)
        }
    }

    category, err := s.classify(ctx, ticket)
    if err != nil { return s.failed(rec, key, err) }
    rec.Category = category

    draft, err := s.generate(ctx, ticket, category, hits)
    if err != nil { return s.failed(rec, key, err) }

    if s.cfg.Refine {
        refined, err := s.refine(ctx, ticket, draft)
        if err != nil {
            s.log.Warn().Err(err).Str("ticket", key).Msg("refine pass failed, keeping draft")
        } else {
            draft = refined
        }
    }
    rec.Output = dedupeSections(draft)
    return rec
}

// AnalyzeBatch processes tickets one at a time, in order. A failed ticket
// produces an error recommendation and the batch moves on.
func (s *Service) AnalyzeBatch(ctx context.Context, keys []string) []domain.Recommendation {
    out := make([]domain.Recommendation, 0, len(keys))
    for _, k := range keys {
        out = append(out, s.Analyze(ctx, k))
    }
    return out
}

func (s *Service) failed(rec domain.Recommendation, key string, err error) domain.Recommendation {
    s.log.Error().Err(err).Str("ticket", key).Msg("analysis failed")
    rec.Output = fmt.Sprintf("Error analyzing ticket %s: %v", key, err)
    rec.Err = err
    return rec
}

// relevantContext retrieves the top-k indexed chunks for the ticket. Retrieval
// failures degrade to an empty context rather than aborting the analysis.
func (s *Service) relevantContext(ctx context.Context, t domain.Ticket) []domain.ScoredChunk {
    query := fmt.Sprintf("Based on the ticket '%s', what should be the acceptance criteria?", t.Summary)
    embs, err := s.llm.Embed(ctx, []string{query})
    if err != nil || len(embs) != 1 {
        s.log.Warn().Err(err).Str("ticket", t.Key).Msg("query embedding failed, continuing without context")
        return nil
    }
    hits, err := s.idx.QuerySimilar(ctx, embs[0], s.cfg.RetrieveK)
    if err != nil {
        s.log.Warn().Err(err).Str("ticket", t.Key).Msg("similarity query failed, continuing without context")
        return nil
    }
    return hits
}

func (s *Service) classify(ctx context.Context, t domain.Ticket) (string, error) {
    var b strings.Builder
    b.WriteString("Classify the following JIRA ticket into exactly one of these categories:\n")
    for _, c := range domain.Categories {
        fmt.Fprintf(&b, "- %s\n", c)
    }
    b.WriteString("\nTicket:\n")
    b.WriteString(FormatTicket(t))
    b.WriteString("\nProvide ONLY the category name, nothing else.")
    out, err := s.llm.Complete(ctx, s.system, b.String())
    if err != nil { return "", fmt.Errorf("classify: %w", err) }
    return strings.TrimSpace(out), nil
}

func (s *Service) generate(ctx context.Context, t domain.Ticket, category string, hits []domain.ScoredChunk) (string, error) {
    var b strings.Builder
    fmt.Fprintf(&b, "Ticket Classification: %s\n\n", category)
    b.WriteString("Ticket Details:\n")
    fmt.Fprintf(&b, "Key: %s\n", t.Key)
    fmt.Fprintf(&b, "Type: %s\n", t.Type)
    fmt.Fprintf(&b, "Summary: %s\n", t.Summary)
    fmt.Fprintf(&b, "Description: %s\n\n", t.Description)
    b.WriteString("Related Context:\n")
    b.WriteString(contextBlock(hits))
    fmt.Fprintf(&b, "\nWrite at most %d acceptance criteria for this ticket. Use exactly this structure:\n\n", s.cfg.MaxCriteria)
    b.WriteString("**Acceptance Criteria:**\n")
    b.WriteString("1. <criterion>\n")
    b.WriteString("   - Verification: <how the team verifies it>\n\n")
    b.WriteString("Every criterion must have a verification method. Do not add sections beyond the structure above.")
    out, err := s.llm.Complete(ctx, s.system, b.String())
    if err != nil { return "", fmt.Errorf("generate criteria: %w", err) }
    return strings.TrimSpace(out), nil
}

// refine is an optional second pass that tightens wording and removes
// untestable criteria. Enabled with REFINE_CRITERIA.
func (s *Service) refine(ctx context.Context, t domain.Ticket, draft string) (string, error) {
    var b strings.Builder
    fmt.Fprintf(&b, "Review the acceptance criteria drafted for ticket %s.\n", t.Key)
    b.WriteString("Tighten vague wording, drop criteria that cannot be verified, and keep the exact same structure.\n\n")
    b.WriteString(draft)
    out, err := s.llm.Complete(ctx, s.system, b.String())
    if err != nil { return "", fmt.Errorf("refine criteria: %w", err) }
    return strings.TrimSpace(out), nil
}

func contextBlock(hits []domain.ScoredChunk) string {
    if len(hits) == 0 { return "(no related context found)\n" }
    var b strings.Builder
    for _, h := range hits {
        label := h.Source
        if h.TicketKey != "" { label = h.TicketKey + " " + label }
        fmt.Fprintf(&b, "-- [%s] %s\n", label, h.Text)
    }
    return b.String()
}

// dedupeSections drops repeated bold section headers, keeping the first
// occurrence. Models occasionally emit the template header twice.
func dedupeSections(s string) string {
    lines := strings.Split(s, "\n")
    seen := map[string]bool{}
    out := lines[:0]
    for _, line := range lines {
        t := strings.TrimSpace(line)
        if strings.HasPrefix(t, "**") && strings.HasSuffix(t, "**") {
            if seen[t] { continue }
            seen[t] = true
        }
        out = append(out, line)
    }
    return strings.Join(out, "\n")
}

func contains(ss []string, s string) bool {
    for _, v := range ss {
        if v == s { return true }
    }
    return false
}
