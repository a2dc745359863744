package main

import (
	"context"
	"flag"
	"log"

	"vton-backend/internal/config"
	pg "vton-backend/internal/infra/db/postgres"
)

// Applies the schema. Idempotent; safe to run on every deploy.
const schema = `
CREATE TABLE IF NOT EXISTS inference_tasks (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    provider      TEXT NOT NULL DEFAULT '',
    job_id        TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    progress      DOUBLE PRECISION NOT NULL DEFAULT 0,
    person_key    TEXT NOT NULL,
    garment_keys  TEXT[] NOT NULL DEFAULT '{}',
    mask_key      TEXT NOT NULL DEFAULT '',
    result_key    TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    completed_at  TIMESTAMPTZ,
    cancelled_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_inference_tasks_user ON inference_tasks (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_inference_tasks_job ON inference_tasks (job_id);

CREATE TABLE IF NOT EXISTS inference_task_events (
    id         BIGSERIAL PRIMARY KEY,
    task_id    TEXT NOT NULL REFERENCES inference_tasks(id) ON DELETE CASCADE,
    kind       TEXT NOT NULL,
    payload    JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_task_events_task ON inference_task_events (task_id, id);

CREATE TABLE IF NOT EXISTS webhook_deliveries (
    id           BIGSERIAL PRIMARY KEY,
    task_id      TEXT NOT NULL,
    job_id       TEXT NOT NULL,
    status       TEXT NOT NULL,
    payload      BYTEA NOT NULL,
    processed    BOOLEAN NOT NULL DEFAULT FALSE,
    received_at  TIMESTAMPTZ NOT NULL,
    processed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_job ON webhook_deliveries (job_id, status);
`

func main() {
	ctx := context.Background()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")
}
