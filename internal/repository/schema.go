package repository

import (
	"context"
	"fmt"
)

// Bootstrap DDL. Single-row updates are the atomicity unit; JSON-shaped
// sub-documents live in jsonb columns.
const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
    id uuid PRIMARY KEY,
    name text NOT NULL DEFAULT '',
    description text NOT NULL DEFAULT '',
    image_style text NOT NULL DEFAULT '',
    text_model text NOT NULL DEFAULT '',
    image_model text NOT NULL DEFAULT '',
    game_system_id uuid,
    plan text NOT NULL DEFAULT '',
    quests jsonb NOT NULL DEFAULT '[]',
    clocks jsonb NOT NULL DEFAULT '[]',
    world_date text NOT NULL DEFAULT '',
    time_of_day text NOT NULL DEFAULT '',
    active_characters jsonb NOT NULL DEFAULT '[]',
    tool_flags jsonb NOT NULL DEFAULT '{}',
    archived boolean NOT NULL DEFAULT false,
    created_at timestamptz NOT NULL,
    updated_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id uuid PRIMARY KEY,
    campaign_id uuid NOT NULL,
    role text NOT NULL,
    blocks jsonb NOT NULL DEFAULT '[]',
    scene jsonb,
    usage jsonb,
    audio jsonb,
    summary_id uuid,
    status text NOT NULL,
    created_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_campaign_created
    ON messages (campaign_id, created_at);

CREATE TABLE IF NOT EXISTS characters (
    id uuid PRIMARY KEY,
    campaign_id uuid NOT NULL,
    name text NOT NULL,
    description text NOT NULL DEFAULT '',
    image_prompt text NOT NULL DEFAULT '',
    portrait_ref text NOT NULL DEFAULT '',
    active boolean NOT NULL DEFAULT false,
    notes text NOT NULL DEFAULT '',
    outfits jsonb NOT NULL DEFAULT '{}',
    current_outfit text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL,
    updated_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_characters_campaign ON characters (campaign_id);

CREATE TABLE IF NOT EXISTS memories (
    id uuid PRIMARY KEY,
    campaign_id uuid NOT NULL,
    category text NOT NULL DEFAULT '',
    summary text NOT NULL DEFAULT '',
    context text NOT NULL DEFAULT '',
    tags jsonb NOT NULL DEFAULT '[]',
    embedding jsonb NOT NULL DEFAULT '[]',
    created_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_campaign ON memories (campaign_id);

CREATE TABLE IF NOT EXISTS summaries (
    id uuid PRIMARY KEY,
    campaign_id uuid NOT NULL,
    text text NOT NULL DEFAULT '',
    character_ids jsonb NOT NULL DEFAULT '[]',
    created_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_summaries_campaign ON summaries (campaign_id);

CREATE TABLE IF NOT EXISTS job_progress (
    id uuid PRIMARY KEY,
    campaign_id uuid NOT NULL,
    kind text NOT NULL,
    steps jsonb NOT NULL DEFAULT '[]',
    status text NOT NULL,
    created_at timestamptz NOT NULL,
    updated_at timestamptz NOT NULL
);

CREATE TABLE IF NOT EXISTS game_systems (
    id uuid PRIMARY KEY,
    name text NOT NULL,
    ruleset_prompt text NOT NULL DEFAULT '',
    files jsonb NOT NULL DEFAULT '[]',
    created_at timestamptz NOT NULL
);
`

// EnsureSchema creates tables and indexes if they do not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
