/* Copyright (c) 2025 Sherry Ismail
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "os"
    "sort"
    "strings"

    "github.com/rs/zerolog"

    "github.com/sherryismail/AI-Agent-JIRA/internal/chunker"
    "github.com/sherryismail/AI-Agent-JIRA/internal/config"
    "github.com/sherryismail/AI-Agent-JIRA/internal/domain"
    "github.com/sherryismail/AI-Agent-JIRA/internal/repo"
)

// JiraClient is what the service needs from the ticket tracker.
type JiraClient interface {
    Issue(ctx context.Context, key string) (domain.Ticket, error)
    Children(ctx context.Context, rootKey string) ([]domain.Ticket, error)
    AddComment(ctx context.Context, key, body string) error
}

// LLM covers both chat completion and embedding calls.
type LLM interface {
    Complete(ctx context.Context, system, user string) (string, error)
    Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// VectorIndex is the persistent chunk store plus its bookkeeping.
type VectorIndex interface {
    ReplaceKnowledgeBase(ctx context.Context, rootKey string, entries []domain.IndexEntry) error
    QuerySimilar(ctx context.Context, embedding []float64, k int) ([]domain.ScoredChunk, error)
    SaveProcessedTickets(ctx context.Context, rootKey string, keys []string) error
    ProcessedTickets(ctx context.Context) ([]string, error)
    StartBuildRun(ctx context.Context, rootKey string) (int64, error)
    FinishBuildRun(ctx context.Context, id int64, tickets, chunks int, success bool, errStr string) error
    GetLastRun(ctx context.Context) (*repo.BuildRun, error)
}

const systemPrompt = "You are a senior engineer assisting an embedded systems team. " +
    "You analyze JIRA tickets and write concrete, testable acceptance criteria " +
    "that respect the team's definition of done."

type Service struct {
    cfg    config.Config
    log    zerolog.Logger
    idx    VectorIndex
    jira   JiraClient
    llm    LLM
    split  chunker.Splitter
    dod    string
    system string
}

// New wires the service. dod is the team's definition-of-done reference text;
// it may be empty when the context document is unavailable.
func New(cfg config.Config, logger zerolog.Logger, idx VectorIndex, jc JiraClient, llm LLM, dod string) *Service {
    return &Service{
        cfg:    cfg,
        log:    logger,
        idx:    idx,
        jira:   jc,
        llm:    llm,
        split:  chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
        dod:    dod,
        system: systemPrompt,
    }
}

// BuildKnowledgeBase fetches the root ticket and all of its children, chunks
// their descriptions and acceptance criteria together with the DoD reference,
// embeds everything in one batch, and fully replaces the vector index. A
// failure anywhere leaves nothing half-built to analyze against.
func (s *Service) BuildKnowledgeBase(ctx context.Context, rootKey string) error {
    runID, err := s.idx.StartBuildRun(ctx, rootKey)
    if err != nil { s.log.Warn().Err(err).Msg("could not record build run") }

    fail := func(err error) error {
        if runID != 0 {
            if ferr := s.idx.FinishBuildRun(ctx, runID, 0, 0, false, err.Error()); ferr != nil {
                s.log.Warn().Err(ferr).Msg("could not finish build run")
            }
        }
        return err
    }

    root, err := s.jira.Issue(ctx, rootKey)
    if err != nil { return fail(fmt.Errorf("fetch root ticket %s: %w", rootKey, err)) }
    children, err := s.jira.Children(ctx, rootKey)
    if err != nil { return fail(fmt.Errorf("fetch children of %s: %w", rootKey, err)) }

    tickets := append([]domain.Ticket{root}, children...)
    var chunks []domain.Chunk
    keys := make([]string, 0, len(tickets))
    for _, t := range tickets {
        keys = append(keys, t.Key)
        chunks = append(chunks, s.ticketChunks(t)...)
    }
    for _, part := range s.split.Split(s.dod) {
        chunks = append(chunks, domain.Chunk{Text: part, Source: domain.SourceDefinitionOfDone})
    }
    if len(chunks) == 0 {
        return fail(fmt.Errorf("no indexable text under %s: tickets carry no descriptions or acceptance criteria", rootKey))
    }

    texts := make([]string, len(chunks))
    for i, ch := range chunks { texts[i] = ch.Text }
    embeddings, err := s.llm.Embed(ctx, texts)
    if err != nil { return fail(fmt.Errorf("embed %d chunks: %w", len(chunks), err)) }

    entries := make([]domain.IndexEntry, len(chunks))
    for i, ch := range chunks {
        entries[i] = domain.IndexEntry{Chunk: ch, Embedding: embeddings[i]}
    }
    if err := s.idx.ReplaceKnowledgeBase(ctx, rootKey, entries); err != nil {
        return fail(fmt.Errorf("replace knowledge base: %w", err))
    }
    if err := s.idx.SaveProcessedTickets(ctx, rootKey, keys); err != nil {
        s.log.Warn().Err(err).Msg("could not save processed ticket keys")
    }
    if err := s.writeAuditFile(keys); err != nil {
        s.log.Warn().Err(err).Str("path", s.cfg.AuditPath).Msg("could not write audit file")
    }
    if runID != 0 {
        if err := s.idx.FinishBuildRun(ctx, runID, len(tickets), len(entries), true, ""); err != nil {
            s.log.Warn().Err(err).Msg("could not finish build run")
        }
    }
    s.log.Info().Str("root", rootKey).Int("tickets", len(tickets)).Int("chunks", len(entries)).
        Msg("knowledge base built")
    return nil
}

func (s *Service) ticketChunks(t domain.Ticket) []domain.Chunk {
    var out []domain.Chunk
    for _, part := range s.split.Split(t.Description) {
        out = append(out, domain.Chunk{Text: part, Source: domain.SourceDescription, TicketKey: t.Key})
    }
    if t.AcceptanceCriteria != nil {
        for _, part := range s.split.Split(*t.AcceptanceCriteria) {
            out = append(out, domain.Chunk{Text: part, Source: domain.SourceAcceptanceCriteria, TicketKey: t.Key})
        }
    }
    return out
}

// writeAuditFile records which tickets the current index was built from, in a
// human-readable snapshot next to the process.
func (s *Service) writeAuditFile(keys []string) error {
    if s.cfg.AuditPath == "" { return nil }
    sorted := append([]string(nil), keys...)
    sort.Strings(sorted)
    var b strings.Builder
    b.WriteString("JIRA Tickets in Vector Store:\n")
    b.WriteString("=========================\n")
    for _, k := range sorted {
        b.WriteString(k)
        b.WriteByte('\n')
    }
    fmt.Fprintf(&b, "\nTotal Tickets: %d\n", len(sorted))
    return os.WriteFile(s.cfg.AuditPath, []byte(b.String()), 0o644)
}

// GetLastRun exposes the most recent build run for the admin surface.
func (s *Service) GetLastRun(ctx context.Context) (*repo.BuildRun, error) {
    return s.idx.GetLastRun(ctx)
}

// IndexedTickets lists the ticket keys the current knowledge base was built
// from, sorted.
func (s *Service) IndexedTickets(ctx context.Context) ([]string, error) {
    return s.idx.ProcessedTickets(ctx)
}
