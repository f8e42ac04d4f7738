/* Copyright (c) 2025 Sherry Ismail
 * SPDX-License-Identifier: BSD-3-Clause */
package jira

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net/http"
    "net/url"
    "strings"

    "github.com/rs/zerolog"

    "github.com/sherryismail/AI-Agent-JIRA/internal/config"
    "github.com/sherryismail/AI-Agent-JIRA/internal/domain"
)

type Client struct {
    baseURL string
    token   string
    user    string
    pass    string
    acField string
    http    *http.Client
    log     zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        baseURL: cfg.JiraBaseURL,
        token:   cfg.JiraPAT,
        user:    cfg.JiraEmail,
        pass:    cfg.JiraAPIToken,
        acField: cfg.JiraACField,
        http:    &http.Client{Timeout: cfg.HTTPTimeout},
        log:     log,
    }
}

// DTOs for the tracker's REST shapes. Optional fields decode to pointers so
// absence stays an explicit check instead of a reflective probe.
type nameRef struct {
    Name string `json:"name"`
}

type parentDTO struct {
    Key    string `json:"key"`
    Fields struct {
        Summary string `json:"summary"`
    } `json:"fields"`
}

type linkDTO struct {
    Type struct {
        Inward  string `json:"inward"`
        Outward string `json:"outward"`
    } `json:"type"`
    InwardIssue  *struct{ Key string `json:"key"` } `json:"inwardIssue"`
    OutwardIssue *struct{ Key string `json:"key"` } `json:"outwardIssue"`
}

type fieldsDTO struct {
    Summary     string     `json:"summary"`
    Description *string    `json:"description"`
    IssueType   *nameRef   `json:"issuetype"`
    Status      *nameRef   `json:"status"`
    Parent      *parentDTO `json:"parent"`
    IssueLinks  []linkDTO  `json:"issuelinks"`
}

type issueDTO struct {
    Key    string          `json:"key"`
    Fields json.RawMessage `json:"fields"`
}

type searchDTO struct {
    Issues []issueDTO `json:"issues"`
    Total  int        `json:"total"`
}

// Issue fetches a single issue snapshot with the fields the pipeline needs.
func (c *Client) Issue(ctx context.Context, key string) (domain.Ticket, error) {
    if strings.TrimSpace(key) == "" { return domain.Ticket{}, errors.New("jira: empty issue key") }
    q := url.Values{}
    q.Set("fields", c.fieldList())
    u := c.apiURL("/rest/api/2/issue/"+url.PathEscape(key), q)
    var dto issueDTO
    if err := c.doJSON(ctx, http.MethodGet, u, nil, &dto); err != nil {
        return domain.Ticket{}, err
    }
    return c.toTicket(dto)
}

// Children runs one tracker-side query for everything parented to or epic-
// linked to rootKey.
func (c *Client) Children(ctx context.Context, rootKey string) ([]domain.Ticket, error) {
    if strings.TrimSpace(rootKey) == "" { return nil, errors.New("jira: empty root key") }
    jql := fmt.Sprintf(`parent = %s OR "Epic Link" = %s`, rootKey, rootKey)
    var out []domain.Ticket
    startAt := 0
    for {
        q := url.Values{}
        q.Set("jql", jql)
        q.Set("fields", c.fieldList())
        q.Set("startAt", fmt.Sprint(startAt))
        q.Set("maxResults", "50")
        u := c.apiURL("/rest/api/2/search", q)
        var page searchDTO
        if err := c.doJSON(ctx, http.MethodGet, u, nil, &page); err != nil { return nil, err }
        for _, dto := range page.Issues {
            t, err := c.toTicket(dto)
            if err != nil {
                // never fail the whole build for one malformed ticket
                c.log.Error().Err(err).Str("ticket", dto.Key).Msg("jira: skipping malformed issue")
                continue
            }
            out = append(out, t)
        }
        if len(page.Issues) < 50 { break }
        startAt += 50
    }
    return out, nil
}

// AddComment appends a comment to an issue; the one write operation.
func (c *Client) AddComment(ctx context.Context, key, body string) error {
    if strings.TrimSpace(key) == "" { return errors.New("jira: empty issue key") }
    u := c.apiURL("/rest/api/2/issue/"+url.PathEscape(key)+"/comment", nil)
    payload := map[string]string{"body": body}
    return c.doJSON(ctx, http.MethodPost, u, payload, nil)
}

func (c *Client) fieldList() string {
    return "summary,description,issuetype,status,parent,issuelinks," + c.acField
}

func (c *Client) toTicket(dto issueDTO) (domain.Ticket, error) {
    if dto.Key == "" { return domain.Ticket{}, errors.New("jira: issue without key") }
    var f fieldsDTO
    if len(dto.Fields) > 0 {
        if err := json.Unmarshal(dto.Fields, &f); err != nil {
            return domain.Ticket{}, fmt.Errorf("jira: decode fields of %s: %w", dto.Key, err)
        }
    }
    t := domain.Ticket{Key: dto.Key, Summary: f.Summary}
    if f.Description != nil { t.Description = sanitizeText(*f.Description) }
    if f.IssueType != nil { t.Type = f.IssueType.Name }
    if f.Status != nil { t.Status = f.Status.Name }
    if f.Parent != nil { t.Parent = &domain.ParentRef{Key: f.Parent.Key, Summary: f.Parent.Fields.Summary} }
    for _, l := range f.IssueLinks {
        if l.OutwardIssue != nil { t.Links = append(t.Links, domain.IssueLink{Relation: l.Type.Outward, Key: l.OutwardIssue.Key}) }
        if l.InwardIssue != nil { t.Links = append(t.Links, domain.IssueLink{Relation: l.Type.Inward, Key: l.InwardIssue.Key}) }
    }
    t.AcceptanceCriteria = c.acceptanceCriteria(dto.Key, dto.Fields)
    return t, nil
}

// acceptanceCriteria pulls the configured custom field out of the raw fields
// object. A malformed value skips just that field, never the ticket.
func (c *Client) acceptanceCriteria(key string, raw json.RawMessage) *string {
    if len(raw) == 0 || c.acField == "" { return nil }
    var all map[string]json.RawMessage
    if err := json.Unmarshal(raw, &all); err != nil { return nil }
    v, ok := all[c.acField]
    if !ok || string(v) == "null" { return nil }
    var s string
    if err := json.Unmarshal(v, &s); err != nil {
        c.log.Warn().Str("ticket", key).Str("field", c.acField).Msg("jira: acceptance criteria field is not text, skipping")
        return nil
    }
    if strings.TrimSpace(s) == "" { return nil }
    s = sanitizeText(s)
    return &s
}

func (c *Client) apiURL(path string, q url.Values) string {
    base := strings.TrimRight(c.baseURL, "/")
    if !strings.HasPrefix(path, "/") { path = "/" + path }
    u := base + path
    if len(q) > 0 { u = u + "?" + q.Encode() }
    return u
}

// doJSON issues a single request. No retry: an external failure is terminal
// for the operation and reported once.
func (c *Client) doJSON(ctx context.Context, method, u string, body any, out any) error {
    if c.baseURL == "" { return errors.New("jira: empty baseURL") }
    var r io.Reader
    if body != nil {
        b, err := json.Marshal(body)
        if err != nil { return err }
        r = strings.NewReader(string(b))
    }
    req, err := http.NewRequestWithContext(ctx, method, u, r)
    if err != nil { return err }
    if body != nil { req.Header.Set("Content-Type", "application/json") }
    if c.token != "" {
        req.Header.Set("Authorization", "Bearer "+c.token)
    } else if c.user != "" && c.pass != "" {
        req.SetBasicAuth(c.user, c.pass)
    }
    resp, err := c.http.Do(req)
    if err != nil { return err }
    defer resp.Body.Close()
    if resp.StatusCode >= 300 {
        b, _ := io.ReadAll(resp.Body)
        return fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
    }
    if out == nil {
        _, _ = io.Copy(io.Discard, resp.Body)
        return nil
    }
    return json.NewDecoder(resp.Body).Decode(out)
}

// sanitizeText strips tracker wiki markup noise before text reaches the
// chunker or a prompt.
func sanitizeText(s string) string {
    if s == "" { return s }
    replacers := []struct{ old, new string }{
        {"\r\n", "\n"}, {"\r", "\n"},
        {"{code}", ""}, {"{noformat}", ""}, {"{panel}", ""},
        {"{color:#ff0000}", ""}, {"{color}", ""},
    }
    out := s
    for _, r := range replacers { out = strings.ReplaceAll(out, r.old, r.new) }
    if strings.Contains(out, "{code:") {
        for _, lang := range []string{"{code:java}", "{code:json}", "{code:sql}", "{code:c}"} {
            out = strings.ReplaceAll(out, lang, "")
        }
    }
    return out
}
