/* Copyright (c) 2025 Sherry Ismail
 * SPDX-License-Identifier: BSD-3-Clause */
package http

import (
    "context"
    "net/http"
    "strings"

    "github.com/gin-gonic/gin"
    "github.com/rs/zerolog"

    "github.com/sherryismail/AI-Agent-JIRA/internal/config"
    "github.com/sherryismail/AI-Agent-JIRA/internal/domain"
    "github.com/sherryismail/AI-Agent-JIRA/internal/repo"
    "github.com/sherryismail/AI-Agent-JIRA/internal/services"
)

type service interface {
    BuildKnowledgeBase(ctx context.Context, rootKey string) error
    AnalyzeBatch(ctx context.Context, keys []string) []domain.Recommendation
    CommentCriteria(ctx context.Context, input string) (string, error)
    GetLastRun(ctx context.Context) (*repo.BuildRun, error)
    IndexedTickets(ctx context.Context) ([]string, error)
}

type Handlers struct {
    cfg config.Config
    log zerolog.Logger
    svc service
}

func NewHandlers(cfg config.Config, log zerolog.Logger, svc any) *Handlers {
    return &Handlers{cfg: cfg, log: log, svc: svc.(service)}
}

func (h *Handlers) Healthz(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) LastRun(c *gin.Context) {
    lr, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, lr)
}

// Build queues a full knowledge-base rebuild. The work is detached from the
// request so a slow embed run does not time out the caller.
func (h *Handlers) Build(c *gin.Context) {
    var req struct {
        Root string `json:"root"`
    }
    _ = c.ShouldBindJSON(&req)
    root := services.NormalizeKey(h.cfg.ProjectPrefix, req.Root)
    if root == "" { root = h.cfg.RootTicket }
    if root == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "no root ticket: set ROOT_TICKET or pass {\"root\": ...}"})
        return
    }
    go func() {
        if err := h.svc.BuildKnowledgeBase(context.Background(), root); err != nil {
            h.log.Error().Err(err).Str("root", root).Msg("build failed")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "queued", "root": root})
}

// Analyze runs synchronously; the response carries one recommendation per
// requested ticket, failed tickets included.
func (h *Handlers) Analyze(c *gin.Context) {
    var req struct {
        Tickets []string `json:"tickets"`
    }
    if err := c.ShouldBindJSON(&req); err != nil || len(req.Tickets) == 0 {
        c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"tickets\": [\"ES-1234\", ...]}"})
        return
    }
    keys := make([]string, 0, len(req.Tickets))
    for _, t := range req.Tickets {
        if k := services.NormalizeKey(h.cfg.ProjectPrefix, t); k != "" { keys = append(keys, k) }
    }
    recs := h.svc.AnalyzeBatch(c.Request.Context(), keys)
    c.JSON(http.StatusOK, gin.H{"results": recs})
}

func (h *Handlers) Tickets(c *gin.Context) {
    keys, err := h.svc.IndexedTickets(c.Request.Context())
    if err != nil {
        c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"tickets": keys, "total": len(keys)})
}

func (h *Handlers) Comment(c *gin.Context) {
    var req struct {
        Ticket string `json:"ticket"`
        Body   string `json:"body"`
    }
    if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Ticket) == "" {
        c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"ticket\": ..., \"body\": ...}"})
        return
    }
    key := services.NormalizeKey(h.cfg.ProjectPrefix, req.Ticket)
    msg, err := h.svc.CommentCriteria(c.Request.Context(), key+"|"+req.Body)
    if err != nil {
        c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
        return
    }
    c.JSON(http.StatusOK, gin.H{"status": msg})
}
