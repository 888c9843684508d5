package postgres

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v4/stdlib" // Драйвер PostgreSQL
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"data-chopper/internal/pkg/config"
)

// schema создает таблицы разделов, записей и очереди задач
const schema = `
CREATE TABLE IF NOT EXISTS sections (
	id     BIGSERIAL PRIMARY KEY,
	handle TEXT NOT NULL UNIQUE,
	name   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
	id         BIGSERIAL PRIMARY KEY,
	section_id BIGINT NOT NULL REFERENCES sections (id),
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS entries_section_status_idx
	ON entries (section_id, status) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS chop_tasks (
	id                TEXT PRIMARY KEY,
	run_id            TEXT NOT NULL,
	collection_handle TEXT NOT NULL,
	status            TEXT NOT NULL,
	payload           JSONB NOT NULL,
	state             TEXT NOT NULL DEFAULT 'pending',
	attempts          INT NOT NULL DEFAULT 0,
	max_attempts      INT NOT NULL,
	last_error        TEXT NOT NULL DEFAULT '',
	deleted_count     INT NOT NULL DEFAULT 0,
	missing_count     INT NOT NULL DEFAULT 0,
	simulated_count   INT NOT NULL DEFAULT 0,
	run_after         TIMESTAMPTZ NOT NULL DEFAULT now(),
	locked_until      TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS chop_tasks_ready_idx ON chop_tasks (state, run_after);
CREATE INDEX IF NOT EXISTS chop_tasks_run_idx ON chop_tasks (run_id);
`

// NewPostgresDB создает новое подключение к PostgreSQL
func NewPostgresDB(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sqlx.DB, error) {
	// Создаем подключение
	db, err := sqlx.ConnectContext(ctx, "pgx", cfg.GetDBConnString())
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Настраиваем пул соединений
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnMaxLifetime)

	logger.Info("Connected to PostgreSQL",
		zap.String("host", cfg.DBHost),
		zap.Int("port", cfg.DBPort),
		zap.String("database", cfg.DBName))

	return db, nil
}

// Migrate создает схему, если ее еще нет
func Migrate(ctx context.Context, db *sqlx.DB, logger *zap.Logger) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Info("Database schema is up to date")
	return nil
}

// CloseDB закрывает соединение с базой данных
func CloseDB(db *sqlx.DB, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("Error closing database connection", zap.Error(err))
	} else {
		logger.Info("Database connection closed")
	}
}
