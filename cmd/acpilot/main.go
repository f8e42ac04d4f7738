/* Copyright (c) 2025 Sherry Ismail
 * SPDX-License-Identifier: BSD-3-Clause */
package main

import (
    "context"
    "fmt"
    "os"
    "strings"

    "github.com/rs/zerolog"

    "github.com/sherryismail/AI-Agent-JIRA/internal/adapters/jira"
    "github.com/sherryismail/AI-Agent-JIRA/internal/adapters/openai"
    "github.com/sherryismail/AI-Agent-JIRA/internal/config"
    "github.com/sherryismail/AI-Agent-JIRA/internal/docs"
    "github.com/sherryismail/AI-Agent-JIRA/internal/logger"
    "github.com/sherryismail/AI-Agent-JIRA/internal/repo"
    "github.com/sherryismail/AI-Agent-JIRA/internal/services"
)

func usage() {
    fmt.Fprintln(os.Stderr, "usage:")
    fmt.Fprintln(os.Stderr, "  acpilot <root-ticket> <ticket> [ticket...]   build the knowledge base and analyze tickets")
    fmt.Fprintln(os.Stderr, "  acpilot serve                                run the HTTP admin API with scheduled rebuilds")
}

func main() {
    cfg := config.Load()
    log := logger.New(cfg)

    args := os.Args[1:]
    if len(args) == 0 { usage(); os.Exit(2) }

    if err := cfg.Validate(); err != nil {
        log.Fatal().Err(err).Msg("configuration invalid")
    }

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    db := repo.MustOpen(ctx, cfg, log)
    defer db.Close()
    repository := repo.New(db, log)
    if err := repository.EnsureSchema(ctx); err != nil {
        log.Fatal().Err(err).Msg("schema migration failed")
    }

    jc := jira.NewClient(cfg, log)
    llm := openai.NewClient(cfg, log)
    svc := services.New(cfg, log, repository, jc, llm, loadDoD(cfg, log))

    if args[0] == "serve" {
        serve(cfg, log, svc, repository)
        return
    }

    if len(args) < 2 { usage(); os.Exit(2) }
    root := services.NormalizeKey(cfg.ProjectPrefix, args[0])
    targets := make([]string, 0, len(args)-1)
    for _, a := range args[1:] {
        if k := services.NormalizeKey(cfg.ProjectPrefix, a); k != "" { targets = append(targets, k) }
    }

    if err := svc.BuildKnowledgeBase(ctx, root); err != nil {
        log.Fatal().Err(err).Str("root", root).Msg("knowledge base build failed")
    }

    for _, rec := range svc.AnalyzeBatch(ctx, targets) {
        fmt.Println(strings.Repeat("=", 50))
        fmt.Printf("Analysis for %s\n", rec.TicketKey)
        if rec.Category != "" { fmt.Printf("Category: %s\n", rec.Category) }
        fmt.Println(strings.Repeat("=", 50))
        fmt.Println(rec.Output)
        fmt.Println()
    }
}

// loadDoD pulls the Definition of Done section from the reference document.
// A missing document or section is survivable: analyses proceed without it.
func loadDoD(cfg config.Config, log zerolog.Logger) string {
    sections, err := docs.ParseFile(cfg.ContextDoc)
    if err != nil {
        log.Warn().Err(err).Str("path", cfg.ContextDoc).Msg("context document unavailable, continuing without DoD")
        return ""
    }
    dod, ok := sections.DoD()
    if !ok {
        log.Warn().Str("path", cfg.ContextDoc).Msg("context document has no Definition of Done section")
        return ""
    }
    return dod
}
