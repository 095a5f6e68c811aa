package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type PostgresClient struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

func NewPostgresClient(ctx context.Context, connString string, log zerolog.Logger) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	// Pool configuration
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool, log: log}

	if err := client.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

var schema = []struct {
	name string
	ddl  string
}{
	{"users", `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			role VARCHAR(20) DEFAULT 'user',
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
	`},
	{"chatbots", `
		CREATE TABLE IF NOT EXISTS chatbots (
			id VARCHAR(64) PRIMARY KEY,
			tenant_id INT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			welcome_message TEXT NOT NULL DEFAULT '',
			theme_color VARCHAR(16) NOT NULL DEFAULT '#6366f1',
			daily_limit INT NOT NULL DEFAULT 0,
			telegram_chat_id BIGINT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
	`},
	{"widget_sessions", `
		CREATE TABLE IF NOT EXISTS widget_sessions (
			id VARCHAR(32) PRIMARY KEY,
			chatbot_id VARCHAR(64) NOT NULL REFERENCES chatbots(id) ON DELETE CASCADE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
	{"widget_leads", `
		CREATE TABLE IF NOT EXISTS widget_leads (
			id VARCHAR(32) PRIMARY KEY,
			chatbot_id VARCHAR(64) NOT NULL REFERENCES chatbots(id) ON DELETE CASCADE,
			session_id VARCHAR(32) NOT NULL REFERENCES widget_sessions(id) ON DELETE CASCADE,
			first_name VARCHAR(255) NOT NULL,
			last_name VARCHAR(255) NOT NULL,
			email VARCHAR(320) NOT NULL,
			phone VARCHAR(64) NOT NULL,
			opt_in_email BOOLEAN NOT NULL DEFAULT FALSE,
			opt_in_sms BOOLEAN NOT NULL DEFAULT FALSE,
			opt_in_phone BOOLEAN NOT NULL DEFAULT FALSE,
			submitted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`},
	{"widget_messages", `
		CREATE TABLE IF NOT EXISTS widget_messages (
			id VARCHAR(32) PRIMARY KEY,
			session_id VARCHAR(32) NOT NULL REFERENCES widget_sessions(id) ON DELETE CASCADE,
			chatbot_id VARCHAR(64) NOT NULL,
			content TEXT NOT NULL,
			sender_type VARCHAR(16) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);
	`},
	{"widget_messages index", `
		CREATE INDEX IF NOT EXISTS widget_messages_session_created_idx
			ON widget_messages (session_id, created_at);
	`},
	{"message_usage", `
		CREATE TABLE IF NOT EXISTS message_usage (
			chatbot_id VARCHAR(64) NOT NULL,
			date DATE NOT NULL,
			messages_received INT NOT NULL DEFAULT 0,
			messages_sent INT NOT NULL DEFAULT 0,
			PRIMARY KEY (chatbot_id, date)
		);
	`},
}

func (p *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := p.Pool.Exec(ctx, stmt.ddl); err != nil {
			return fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}

	var count int
	if err := p.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		// Admin is ensured by AuthUsecase.EnsureAdmin, which owns hashing.
		p.log.Info().Msg("database initialized, users table empty")
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
