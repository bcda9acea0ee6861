package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"turbine-wpa/internal/metrics"
)

// ErrNotFound запись отсутствует
var ErrNotFound = errors.New("not found")

// Schema таблицы сервиса
const Schema = `
CREATE TABLE IF NOT EXISTS scada_samples (
	turbine_id        TEXT             NOT NULL,
	ts                TIMESTAMPTZ      NOT NULL,
	wind_speed        DOUBLE PRECISION,
	active_power      DOUBLE PRECISION,
	direction_nacelle DOUBLE PRECISION,
	direction_wind    DOUBLE PRECISION,
	pitch_angle       DOUBLE PRECISION,
	humidity          DOUBLE PRECISION,
	pressure          DOUBLE PRECISION,
	temperature       DOUBLE PRECISION,
	PRIMARY KEY (turbine_id, ts)
);

CREATE TABLE IF NOT EXISTS computations (
	computation_id TEXT PRIMARY KEY,
	turbine_id     TEXT             NOT NULL,
	start_time     TIMESTAMPTZ      NOT NULL,
	end_time       TIMESTAMPTZ      NOT NULL,
	is_latest      BOOLEAN          NOT NULL DEFAULT TRUE,
	v_cutin        DOUBLE PRECISION NOT NULL,
	v_cutout       DOUBLE PRECISION NOT NULL,
	v_rated        DOUBLE PRECISION NOT NULL,
	p_rated        DOUBLE PRECISION NOT NULL,
	swept_area     DOUBLE PRECISION NOT NULL,
	estimated      TEXT[]           NOT NULL DEFAULT '{}',
	indicators     JSONB            NOT NULL,
	created_at     TIMESTAMPTZ      NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS computations_latest_idx ON computations (turbine_id, is_latest, end_time DESC);

CREATE TABLE IF NOT EXISTS classification_summary (
	computation_id TEXT             NOT NULL REFERENCES computations ON DELETE CASCADE,
	status_code    INTEGER          NOT NULL,
	status_name    TEXT             NOT NULL,
	count          INTEGER          NOT NULL,
	percentage     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (computation_id, status_code)
);

CREATE TABLE IF NOT EXISTS power_curve_points (
	computation_id TEXT             NOT NULL REFERENCES computations ON DELETE CASCADE,
	analysis_mode  TEXT             NOT NULL,
	split_value    TEXT             NOT NULL,
	wind_speed     DOUBLE PRECISION NOT NULL,
	active_power   DOUBLE PRECISION NOT NULL,
	count          INTEGER          NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_production (
	computation_id TEXT             NOT NULL REFERENCES computations ON DELETE CASCADE,
	day            DATE             NOT NULL,
	energy         DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (computation_id, day)
);

CREATE TABLE IF NOT EXISTS capacity_factor (
	computation_id  TEXT             NOT NULL REFERENCES computations ON DELETE CASCADE,
	wind_speed      DOUBLE PRECISION NOT NULL,
	capacity_factor DOUBLE PRECISION NOT NULL
);
`

// NewPostgresDB открывает пул соединений и проверяет доступность базы
func NewPostgresDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Migrate создает таблицы, если их нет
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// valuesClause "($1,$2),($3,$4)" для rows строк по width колонок
func valuesClause(rows, width int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('(')
		for c := 0; c < width; c++ {
			if c > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}

func record(operation string, err error) {
	metrics.DatabaseOperations.WithLabelValues(operation, metrics.Outcome(err)).Inc()
}
