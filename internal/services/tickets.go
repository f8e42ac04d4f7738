package services

import (
    "context"
    "fmt"
    "strings"

    "github.com/sherryismail/AI-Agent-JIRA/internal/domain"
)

// FormatTicket renders a ticket the way it is fed to the model and shown to
// operators. Absent parent and links are spelled out as None so the model does
// not invent them.
func FormatTicket(t domain.Ticket) string {
    var b strings.Builder
    fmt.Fprintf(&b, "Issue Key: %s\n", t.Key)
    fmt.Fprintf(&b, "Summary: %s\n", t.Summary)
    fmt.Fprintf(&b, "Description: %s\n", t.Description)
    fmt.Fprintf(&b, "Status: %s\n", t.Status)
    fmt.Fprintf(&b, "Type: %s\n", t.Type)
    if t.Parent != nil {
        fmt.Fprintf(&b, "Parent Epic: %s (%s)\n", t.Parent.Key, t.Parent.Summary)
    } else {
        b.WriteString("Parent Epic: None\n")
    }
    if len(t.Links) > 0 {
        parts := make([]string, 0, len(t.Links))
        for _, l := range t.Links {
            parts = append(parts, fmt.Sprintf("%s %s", l.Relation, l.Key))
        }
        fmt.Fprintf(&b, "Linked Issues: %s\n", strings.Join(parts, ", "))
    } else {
        b.WriteString("Linked Issues: None\n")
    }
    return b.String()
}

// CommentCriteria posts a comment back to a ticket. Input is "ISSUE-KEY|COMMENT".
func (s *Service) CommentCriteria(ctx context.Context, input string) (string, error) {
    key, comment, ok := strings.Cut(input, "|")
    key, comment = strings.TrimSpace(key), strings.TrimSpace(comment)
    if !ok || key == "" || comment == "" {
        return "", fmt.Errorf("input should be in format 'ISSUE-KEY|COMMENT'")
    }
    if err := s.jira.AddComment(ctx, key, comment); err != nil {
        return "", fmt.Errorf("add comment to %s: %w", key, err)
    }
    return fmt.Sprintf("Added comment to %s", key), nil
}

// NormalizeKey turns operator shorthand like "2754" or "es-2754" into a full
// issue key under the configured project prefix.
func NormalizeKey(prefix, raw string) string {
    k := strings.ToUpper(strings.TrimSpace(raw))
    if k == "" { return "" }
    if strings.Contains(k, "-") { return k }
    return strings.ToUpper(prefix) + "-" + k
}
