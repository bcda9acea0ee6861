package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"turbine-wpa/internal/models"
)

// StoredComputation сохраненный расчет без точек классификации
type StoredComputation struct {
	ComputationID string            `json:"computation_id"`
	TurbineID     string            `json:"turbine_id"`
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	Constants     models.Constants  `json:"constants"`
	Indicators    models.Indicators `json:"indicators"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ResultStore хранилище результатов расчета
type ResultStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewResultStore создает хранилище результатов
func NewResultStore(db *sql.DB, logger *zap.Logger) *ResultStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultStore{db: db, logger: logger}
}

// SaveResult сохраняет расчет в одной транзакции. Прежние расчеты того же
// окна турбины перестают быть последними.
func (s *ResultStore) SaveResult(ctx context.Context, res *models.Result) (err error) {
	defer func() { record("save_result", err) }()

	indicators, err := json.Marshal(res.Indicators)
	if err != nil {
		return fmt.Errorf("failed to marshal indicators: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err = tx.ExecContext(ctx, `
		UPDATE computations SET is_latest = FALSE
		WHERE turbine_id = $1 AND start_time = $2 AND end_time = $3 AND is_latest
	`, res.TurbineID, res.StartTime, res.EndTime); err != nil {
		return fmt.Errorf("failed to reset latest computation: %w", err)
	}

	c := res.Constants
	estimated := c.Estimated
	if estimated == nil {
		estimated = []string{}
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO computations (computation_id, turbine_id, start_time, end_time, is_latest,
			v_cutin, v_cutout, v_rated, p_rated, swept_area, estimated, indicators)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7, $8, $9, $10, $11)
	`, res.ComputationID, res.TurbineID, res.StartTime, res.EndTime,
		c.VCutin, c.VCutout, c.VRated, c.PRated, c.SweptArea, pq.Array(estimated), indicators); err != nil {
		return fmt.Errorf("failed to insert computation: %w", err)
	}

	for _, stmt := range childRows(res) {
		if len(stmt.args) == 0 {
			continue
		}
		query := stmt.insert + " VALUES " + valuesClause(len(stmt.args)/stmt.width, stmt.width)
		if _, err = tx.ExecContext(ctx, query, stmt.args...); err != nil {
			return fmt.Errorf("failed to insert %s: %w", stmt.table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit computation: %w", err)
	}
	s.logger.Info("Computation stored",
		zap.String("computation_id", res.ComputationID),
		zap.String("turbine_id", res.TurbineID),
	)
	return nil
}

type childStatement struct {
	table  string
	insert string
	width  int
	args   []any
}

// childRows строки дочерних таблиц в детерминированном порядке
func childRows(res *models.Result) []childStatement {
	id := res.ComputationID

	summary := childStatement{
		table:  "classification_summary",
		insert: "INSERT INTO classification_summary (computation_id, status_code, status_name, count, percentage)",
		width:  5,
	}
	for _, st := range models.LegendStatuses {
		name := st.String()
		n, ok := res.Classification.Counts[name]
		if !ok {
			continue
		}
		summary.args = append(summary.args, id, st.Code(), name, n, res.Classification.Percentages[name])
	}

	curves := childStatement{
		table:  "power_curve_points",
		insert: "INSERT INTO power_curve_points (computation_id, analysis_mode, split_value, wind_speed, active_power, count)",
		width:  6,
	}
	for _, mode := range sortedKeys(res.PowerCurves) {
		groups := res.PowerCurves[mode]
		for _, split := range sortedKeys(groups) {
			for _, p := range groups[split] {
				curves.args = append(curves.args, id, mode, split, p.WindSpeed, p.ActivePower, p.Count)
			}
		}
	}

	daily := childStatement{
		table:  "daily_production",
		insert: "INSERT INTO daily_production (computation_id, day, energy)",
		width:  3,
	}
	for _, d := range res.Indicators.DailyProduction {
		daily.args = append(daily.args, id, d.Date, d.Energy)
	}

	capacity := childStatement{
		table:  "capacity_factor",
		insert: "INSERT INTO capacity_factor (computation_id, wind_speed, capacity_factor)",
		width:  3,
	}
	for _, b := range res.Indicators.CapacityFactor {
		capacity.args = append(capacity.args, id, b.WindSpeed, b.CapacityFactor)
	}

	return []childStatement{summary, curves, daily, capacity}
}

// LatestComputation последний актуальный расчет турбины
func (s *ResultStore) LatestComputation(ctx context.Context, turbineID string) (*StoredComputation, error) {
	query := `
		SELECT computation_id, turbine_id, start_time, end_time,
			v_cutin, v_cutout, v_rated, p_rated, swept_area, estimated, indicators, created_at
		FROM computations
		WHERE turbine_id = $1 AND is_latest
		ORDER BY end_time DESC, created_at DESC
		LIMIT 1
	`
	var (
		sc         StoredComputation
		estimated  []string
		indicators []byte
	)
	err := s.db.QueryRowContext(ctx, query, turbineID).Scan(
		&sc.ComputationID, &sc.TurbineID, &sc.StartTime, &sc.EndTime,
		&sc.Constants.VCutin, &sc.Constants.VCutout, &sc.Constants.VRated,
		&sc.Constants.PRated, &sc.Constants.SweptArea,
		pq.Array(&estimated), &indicators, &sc.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		record("latest_computation", nil)
		return nil, ErrNotFound
	}
	record("latest_computation", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest computation: %w", err)
	}

	if len(estimated) > 0 {
		sc.Constants.Estimated = estimated
	}
	if err := json.Unmarshal(indicators, &sc.Indicators); err != nil {
		return nil, fmt.Errorf("failed to unmarshal indicators: %w", err)
	}
	return &sc, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
