package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"turbine-wpa/internal/models"
)

// Параметры пакетной вставки; лимит Postgres 65535 параметров на запрос
const (
	sampleColumns   = 10
	sampleBatchRows = 5000
)

// SampleStore хранилище измерений SCADA
type SampleStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSampleStore создает хранилище измерений
func NewSampleStore(db *sql.DB, logger *zap.Logger) *SampleStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SampleStore{db: db, logger: logger}
}

// LoadWindow измерения турбины в интервале [start, end] по возрастанию времени.
// Необязательные колонки включаются, если в окне есть хотя бы одно значение.
func (s *SampleStore) LoadWindow(ctx context.Context, turbineID string, start, end time.Time) (models.Dataset, error) {
	query := `
		SELECT ts, wind_speed, active_power, direction_nacelle, direction_wind,
			pitch_angle, humidity, pressure, temperature
		FROM scada_samples
		WHERE turbine_id = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts
	`
	rows, err := s.db.QueryContext(ctx, query, turbineID, start, end)
	if err != nil {
		record("load_samples", err)
		return models.Dataset{}, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []models.Sample
	present := make(map[string]bool)
	for rows.Next() {
		var (
			ts                                                   time.Time
			wind, power, nacelle, windDir, pitch, hum, pres, tmp sql.NullFloat64
		)
		if err := rows.Scan(&ts, &wind, &power, &nacelle, &windDir, &pitch, &hum, &pres, &tmp); err != nil {
			record("load_samples", err)
			return models.Dataset{}, fmt.Errorf("failed to scan sample: %w", err)
		}
		sample := models.Sample{
			Timestamp:        ts,
			WindSpeed:        nullable(wind),
			ActivePower:      nullable(power),
			NacelleDirection: nullable(nacelle),
			WindDirection:    nullable(windDir),
			PitchAngle:       nullable(pitch),
			Humidity:         nullable(hum),
			Pressure:         nullable(pres),
			Temperature:      nullable(tmp),
		}
		for col, v := range map[string]sql.NullFloat64{
			models.ColDirectionNacelle: nacelle,
			models.ColDirectionWind:    windDir,
			models.ColPitchAngle:       pitch,
			models.ColHumidity:         hum,
			models.ColPressure:         pres,
			models.ColTemperature:      tmp,
		} {
			if v.Valid {
				present[col] = true
			}
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		record("load_samples", err)
		return models.Dataset{}, fmt.Errorf("failed to iterate samples: %w", err)
	}
	record("load_samples", nil)

	ds := models.Dataset{
		Columns: append([]string(nil), models.RequiredColumns...),
		Samples: samples,
	}
	for _, col := range models.OptionalColumns {
		if present[col] {
			ds.Columns = append(ds.Columns, col)
		}
	}
	s.logger.Debug("Samples loaded",
		zap.String("turbine_id", turbineID),
		zap.Int("samples", len(samples)),
		zap.Strings("columns", ds.Columns),
	)
	return ds, nil
}

// SaveSamples сохраняет измерения; повторные отметки времени пропускаются.
// Возвращает число вставленных строк.
func (s *SampleStore) SaveSamples(ctx context.Context, turbineID string, ds models.Dataset) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		record("save_samples", err)
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var inserted int64
	for start := 0; start < len(ds.Samples); start += sampleBatchRows {
		batch := ds.Samples[start:min(start+sampleBatchRows, len(ds.Samples))]
		query := `INSERT INTO scada_samples (turbine_id, ts, wind_speed, active_power,
			direction_nacelle, direction_wind, pitch_angle, humidity, pressure, temperature)
			VALUES ` + valuesClause(len(batch), sampleColumns) + `
			ON CONFLICT (turbine_id, ts) DO NOTHING`

		args := make([]any, 0, len(batch)*sampleColumns)
		for _, smp := range batch {
			args = append(args, turbineID, smp.Timestamp,
				smp.WindSpeed, smp.ActivePower, smp.NacelleDirection, smp.WindDirection,
				smp.PitchAngle, smp.Humidity, smp.Pressure, smp.Temperature)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			record("save_samples", err)
			return 0, fmt.Errorf("failed to insert samples: %w", err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		record("save_samples", err)
		return 0, fmt.Errorf("failed to commit samples: %w", err)
	}
	record("save_samples", nil)
	s.logger.Info("Samples stored",
		zap.String("turbine_id", turbineID),
		zap.Int("received", len(ds.Samples)),
		zap.Int64("inserted", inserted),
	)
	return inserted, nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}
