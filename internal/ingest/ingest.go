package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"turbine-wpa/internal/models"
)

var (
	// ErrNoHeader пустой файл или нет строки заголовка
	ErrNoHeader = errors.New("missing header row")
	// ErrTimestamp отметка времени не распознана
	ErrTimestamp = errors.New("unrecognized timestamp")
	// ErrUnsupportedFormat расширение файла не поддерживается
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// Форматы отметок времени без зоны трактуются в заданной локации
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02.01.2006 15:04:05",
	"02.01.2006 15:04",
}

// ParseTimestamp разбирает отметку времени: текстовые форматы или unix-время
// в секундах либо миллисекундах
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		if v > 1e11 {
			return time.UnixMilli(int64(v)).In(loc), nil
		}
		return time.Unix(int64(v), 0).In(loc), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, s)
}

// ReadFile читает CSV или XLSX по расширению
func ReadFile(path string, loc *time.Location) (models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return ReadCSV(f, loc)
	case ".xlsx":
		return ReadXLSX(f, loc)
	}
	return models.Dataset{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// ReadCSV читает таблицу с заголовком из канонических имен колонок.
// Разделитель "," или ";" определяется по заголовку; при ";" допускается
// десятичная запятая.
func ReadCSV(r io.Reader, loc *time.Location) (models.Dataset, error) {
	br := bufio.NewReader(r)
	first, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return models.Dataset{}, fmt.Errorf("failed to read csv: %w", err)
	}
	headerLine, _, _ := strings.Cut(string(first), "\n")
	sep := ','
	if strings.Count(headerLine, ";") > strings.Count(headerLine, ",") {
		sep = ';'
	}

	cr := csv.NewReader(br)
	cr.Comma = sep
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return models.Dataset{}, fmt.Errorf("failed to parse csv: %w", err)
	}
	return fromRecords(records, loc, sep == ';', ParseTimestamp)
}

// fromRecords строит набор данных из строк таблицы; первая строка заголовок
func fromRecords(records [][]string, loc *time.Location, decimalComma bool,
	parseTime func(string, *time.Location) (time.Time, error)) (models.Dataset, error) {
	if len(records) == 0 || len(records[0]) == 0 {
		return models.Dataset{}, ErrNoHeader
	}

	columns := make([]string, len(records[0]))
	tsCol := -1
	for i, name := range records[0] {
		columns[i] = normalizeColumn(name)
		if columns[i] == models.ColTimestamp {
			tsCol = i
		}
	}
	ds := models.Dataset{Columns: columns}
	if tsCol < 0 {
		return ds, nil
	}

	for line, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		if tsCol >= len(rec) {
			return ds, fmt.Errorf("row %d: %w: missing value", line+2, ErrTimestamp)
		}
		ts, err := parseTime(rec[tsCol], loc)
		if err != nil {
			return ds, fmt.Errorf("row %d: %w", line+2, err)
		}
		sample := models.Sample{Timestamp: ts}
		for i, col := range columns {
			if i == tsCol || i >= len(rec) {
				continue
			}
			v, err := parseValue(rec[i], decimalComma)
			if err != nil {
				return ds, fmt.Errorf("row %d column %s: %w", line+2, col, err)
			}
			setField(&sample, col, v)
		}
		ds.Samples = append(ds.Samples, sample)
	}
	return ds, nil
}

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	return strings.ToUpper(strings.TrimSpace(name))
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseValue пустые ячейки, NaN и null становятся nil
func parseValue(s string, decimalComma bool) (*float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "-":
		return nil, nil
	}
	if decimalComma {
		s = strings.Replace(s, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, nil
	}
	return &v, nil
}

// setField колонки вне словаря игнорируются; их отклонит проверка входа
func setField(s *models.Sample, col string, v *float64) {
	switch col {
	case models.ColWindSpeed:
		s.WindSpeed = v
	case models.ColActivePower:
		s.ActivePower = v
	case models.ColDirectionNacelle:
		s.NacelleDirection = v
	case models.ColDirectionWind:
		s.WindDirection = v
	case models.ColPitchAngle:
		s.PitchAngle = v
	case models.ColHumidity:
		s.Humidity = v
	case models.ColPressure:
		s.Pressure = v
	case models.ColTemperature:
		s.Temperature = v
	}
}

// MergeChannels объединяет по времени отдельные файлы каналов формата
// "timestamp;value" (ключ карты: имя колонки). Строки, где время не
// распознано, например заголовки, пропускаются.
func MergeChannels(channels map[string]io.Reader, loc *time.Location) (models.Dataset, error) {
	byTime := make(map[int64]*models.Sample)
	var columns []string
	for name, r := range channels {
		col := normalizeColumn(name)
		columns = append(columns, col)

		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			tsText, valText, ok := strings.Cut(line, ";")
			if !ok {
				tsText, valText, ok = strings.Cut(line, ",")
			}
			if !ok {
				return models.Dataset{}, fmt.Errorf("channel %s: malformed line %q", col, line)
			}
			ts, err := ParseTimestamp(tsText, loc)
			if err != nil {
				continue
			}
			v, err := parseValue(valText, strings.Contains(line, ";"))
			if err != nil {
				return models.Dataset{}, fmt.Errorf("channel %s: %w", col, err)
			}
			key := ts.UnixNano()
			sample, ok := byTime[key]
			if !ok {
				sample = &models.Sample{Timestamp: ts}
				byTime[key] = sample
			}
			setField(sample, col, v)
		}
		if err := scanner.Err(); err != nil {
			return models.Dataset{}, fmt.Errorf("channel %s: %w", col, err)
		}
	}

	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	ds := models.Dataset{Columns: canonicalOrder(append(columns, models.ColTimestamp))}
	ds.Samples = make([]models.Sample, len(keys))
	for i, k := range keys {
		ds.Samples[i] = *byTime[k]
	}
	return ds, nil
}

// canonicalOrder обязательные, затем необязательные, затем прочие по алфавиту
func canonicalOrder(cols []string) []string {
	rank := make(map[string]int)
	for i, c := range models.RequiredColumns {
		rank[c] = i
	}
	for i, c := range models.OptionalColumns {
		rank[c] = len(models.RequiredColumns) + i
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range cols {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, iok := rank[out[i]]
		rj, jok := rank[out[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok != jok:
			return iok
		}
		return out[i] < out[j]
	})
	return out
}
