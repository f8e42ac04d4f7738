package main

import (
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog"

    "github.com/sherryismail/AI-Agent-JIRA/internal/config"
    httpapi "github.com/sherryismail/AI-Agent-JIRA/internal/http"
    "github.com/sherryismail/AI-Agent-JIRA/internal/jobs"
    "github.com/sherryismail/AI-Agent-JIRA/internal/repo"
    "github.com/sherryismail/AI-Agent-JIRA/internal/services"
)

// serve runs the admin HTTP API plus the scheduled knowledge-base rebuild
// until interrupted.
func serve(cfg config.Config, log zerolog.Logger, svc *services.Service, repository *repo.Repository) {
    router := httpapi.NewRouter(cfg, log, svc)

    cron := jobs.NewCron(cfg, log, svc, repository)
    cron.Start()
    defer cron.Stop()

    errCh := make(chan error, 1)
    go func() { errCh <- router.Run(cfg.HTTPAddr) }()
    log.Info().Str("addr", cfg.HTTPAddr).Msg("http server started")

    sigCh := make(chan os.Signal, 1)
    signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

    select {
    case <-sigCh:
        log.Info().Msg("shutting down...")
    case err := <-errCh:
        if err != nil { log.Error().Err(err).Msg("http server error") }
    }

    time.Sleep(500 * time.Millisecond)
}
