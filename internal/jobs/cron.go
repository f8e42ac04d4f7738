package jobs

import (
    "context"
    "time"

    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"

    "github.com/sherryismail/AI-Agent-JIRA/internal/config"
    "github.com/sherryismail/AI-Agent-JIRA/internal/repo"
)

type service interface {
    BuildKnowledgeBase(ctx context.Context, rootKey string) error
}

type Cron struct {
    cfg  config.Config
    log  zerolog.Logger
    svc  service
    repo *repo.Repository
    c    *cron.Cron
}

func NewCron(cfg config.Config, log zerolog.Logger, svc service, r *repo.Repository) *Cron {
    loc, _ := time.LoadLocation(cfg.TZ)
    c := cron.New(cron.WithLocation(loc), cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow)))
    cr := &Cron{cfg: cfg, log: log, svc: svc, repo: r, c: c}
    _, _ = c.AddFunc(cfg.RefreshCron, cr.rebuild)
    return cr
}

func (cr *Cron) Start() { cr.c.Start() }
func (cr *Cron) Stop()  { cr.c.Stop() }

// rebuild refreshes the knowledge base from the configured root ticket. The
// advisory lock keeps concurrent replicas from rebuilding over each other.
func (cr *Cron) rebuild() {
    if cr.cfg.RootTicket == "" {
        cr.log.Info().Msg("cron: no ROOT_TICKET configured, skipping rebuild")
        return
    }
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
    defer cancel()
    const lockKey int64 = 727272
    ok, err := cr.repo.TryAdvisoryLock(ctx, lockKey)
    if err != nil { cr.log.Error().Err(err).Msg("cron: lock error"); return }
    if !ok { cr.log.Info().Msg("cron: rebuild already running elsewhere"); return }
    defer func() { _ = cr.repo.AdvisoryUnlock(context.Background(), lockKey) }()
    cr.log.Info().Str("root", cr.cfg.RootTicket).Msg("cron: rebuilding knowledge base")
    if err := cr.svc.BuildKnowledgeBase(ctx, cr.cfg.RootTicket); err != nil {
        cr.log.Error().Err(err).Msg("cron: rebuild failed")
    }
}
