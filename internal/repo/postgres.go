/* Copyright (c) 2025 Sherry Ismail
 * SPDX-License-Identifier: BSD-3-Clause */
package repo

import (
    "context"
    "errors"
    "time"

    "github.com/jackc/pgx/v5"
    "github.com/jackc/pgx/v5/pgxpool"
    "github.com/rs/zerolog"

    "github.com/sherryismail/AI-Agent-JIRA/internal/config"
    "github.com/sherryismail/AI-Agent-JIRA/internal/domain"
)

type DB struct {
    Pool *pgxpool.Pool
    log  zerolog.Logger
}

func MustOpen(ctx context.Context, cfg config.Config, logger zerolog.Logger) *DB {
    pool, err := pgxpool.New(ctx, cfg.DBDSN)
    if err != nil { logger.Fatal().Err(err).Msg("db connect failed") }
    ctx2, cancel := context.WithTimeout(ctx, 10*time.Second)
    defer cancel()
    if err := pool.Ping(ctx2); err != nil { logger.Fatal().Err(err).Msg("db ping failed") }
    return &DB{Pool: pool, log: logger}
}

func (d *DB) Close() { d.Pool.Close() }

type Repository struct {
    db  *DB
    log zerolog.Logger
}

func New(d *DB, logger zerolog.Logger) *Repository { return &Repository{db: d, log: logger} }

func (r *Repository) EnsureSchema(ctx context.Context) error {
    const ddl = `
        CREATE TABLE IF NOT EXISTS kb_chunks(
            id bigserial PRIMARY KEY,
            root_key text NOT NULL,
            ticket_key text NOT NULL DEFAULT '',
            source text NOT NULL,
            content text NOT NULL,
            embedding float4[] NOT NULL,
            created_at timestamptz NOT NULL DEFAULT now()
        );
        CREATE TABLE IF NOT EXISTS kb_tickets(
            root_key text NOT NULL,
            ticket_key text NOT NULL,
            PRIMARY KEY(root_key, ticket_key)
        );
        CREATE TABLE IF NOT EXISTS build_runs(
            id bigserial PRIMARY KEY,
            started_at timestamptz NOT NULL DEFAULT now(),
            finished_at timestamptz,
            root_key text NOT NULL,
            tickets int NOT NULL DEFAULT 0,
            chunks int NOT NULL DEFAULT 0,
            success boolean NOT NULL DEFAULT false,
            error text NOT NULL DEFAULT ''
        );`
    _, err := r.db.Pool.Exec(ctx, ddl)
    return err
}

func (r *Repository) TryAdvisoryLock(ctx context.Context, key int64) (bool, error) {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok)
    return ok, err
}

func (r *Repository) AdvisoryUnlock(ctx context.Context, key int64) error {
    var ok bool
    err := r.db.Pool.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", key).Scan(&ok)
    if !ok && err == nil { return errors.New("advisory unlock returned false") }
    return err
}

// ReplaceKnowledgeBase swaps the whole index for the given root ticket in one
// transaction: exactly one knowledge base reflects exactly one root at a
// time. If the transaction fails the caller must treat index state as
// unknown and rebuild.
func (r *Repository) ReplaceKnowledgeBase(ctx context.Context, rootKey string, entries []domain.IndexEntry) error {
    tx, err := r.db.Pool.Begin(ctx)
    if err != nil { return err }
    defer tx.Rollback(ctx)

    if _, err := tx.Exec(ctx, `DELETE FROM kb_chunks`); err != nil { return err }
    if _, err := tx.Exec(ctx, `DELETE FROM kb_tickets`); err != nil { return err }

    batch := &pgx.Batch{}
    const q = `INSERT INTO kb_chunks(root_key, ticket_key, source, content, embedding)
        VALUES($1,$2,$3,$4,$5)`
    for _, e := range entries {
        batch.Queue(q, rootKey, e.TicketKey, e.Source, e.Text, toFloat32(e.Embedding))
    }
    br := tx.SendBatch(ctx, batch)
    for range entries {
        if _, err := br.Exec(); err != nil { _ = br.Close(); return err }
    }
    if err := br.Close(); err != nil { return err }
    return tx.Commit(ctx)
}

// QuerySimilar returns the top-k stored chunks by cosine similarity to the
// query embedding, descending. An empty index yields an empty result.
func (r *Repository) QuerySimilar(ctx context.Context, embedding []float64, k int) ([]domain.ScoredChunk, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT ticket_key, source, content, embedding FROM kb_chunks`)
    if err != nil { return nil, err }
    defer rows.Close()
    var entries []domain.IndexEntry
    for rows.Next() {
        var e domain.IndexEntry
        var emb []float32
        if err := rows.Scan(&e.TicketKey, &e.Source, &e.Text, &emb); err != nil { return nil, err }
        e.Embedding = toFloat64(emb)
        entries = append(entries, e)
    }
    if err := rows.Err(); err != nil { return nil, err }
    return RankBySimilarity(entries, embedding, k), nil
}

func (r *Repository) SaveProcessedTickets(ctx context.Context, rootKey string, keys []string) error {
    batch := &pgx.Batch{}
    const q = `INSERT INTO kb_tickets(root_key, ticket_key) VALUES($1,$2) ON CONFLICT DO NOTHING`
    for _, k := range keys { batch.Queue(q, rootKey, k) }
    br := r.db.Pool.SendBatch(ctx, batch)
    defer br.Close()
    for range keys {
        if _, err := br.Exec(); err != nil { return err }
    }
    return nil
}

func (r *Repository) ProcessedTickets(ctx context.Context) ([]string, error) {
    rows, err := r.db.Pool.Query(ctx, `SELECT ticket_key FROM kb_tickets ORDER BY ticket_key`)
    if err != nil { return nil, err }
    defer rows.Close()
    var out []string
    for rows.Next() {
        var k string
        if err := rows.Scan(&k); err != nil { return nil, err }
        out = append(out, k)
    }
    return out, rows.Err()
}

type BuildRun struct {
    StartedAt  time.Time  `json:"started_at"`
    FinishedAt *time.Time `json:"finished_at"`
    RootKey    string     `json:"root_key"`
    Tickets    int        `json:"tickets"`
    Chunks     int        `json:"chunks"`
    Success    bool       `json:"success"`
    Error      string     `json:"error"`
}

func (r *Repository) StartBuildRun(ctx context.Context, rootKey string) (int64, error) {
    const q = `INSERT INTO build_runs(started_at, root_key, success) VALUES(now(), $1, false) RETURNING id`
    var id int64
    if err := r.db.Pool.QueryRow(ctx, q, rootKey).Scan(&id); err != nil { return 0, err }
    return id, nil
}

func (r *Repository) FinishBuildRun(ctx context.Context, id int64, tickets, chunks int, success bool, errStr string) error {
    const q = `UPDATE build_runs SET finished_at=now(), tickets=$2, chunks=$3, success=$4, error=$5 WHERE id=$1`
    _, err := r.db.Pool.Exec(ctx, q, id, tickets, chunks, success, errStr)
    return err
}

func (r *Repository) GetLastRun(ctx context.Context) (*BuildRun, error) {
    const q = `SELECT started_at, finished_at, root_key, tickets, chunks, success, error
        FROM build_runs ORDER BY id DESC LIMIT 1`
    row := r.db.Pool.QueryRow(ctx, q)
    lr := &BuildRun{}
    if err := row.Scan(&lr.StartedAt, &lr.FinishedAt, &lr.RootKey, &lr.Tickets, &lr.Chunks, &lr.Success, &lr.Error); err != nil {
        return nil, err
    }
    return lr, nil
}

func toFloat32(v []float64) []float32 {
    out := make([]float32, len(v))
    for i, x := range v { out[i] = float32(x) }
    return out
}

func toFloat64(v []float32) []float64 {
    out := make([]float64, len(v))
    for i, x := range v { out[i] = float64(x) }
    return out
}
