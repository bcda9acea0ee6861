package ingest

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"turbine-wpa/internal/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339", "2024-03-01T00:10:00Z", t0.Add(10 * time.Minute)},
		{"space separated", "2024-03-01 00:10:00", t0.Add(10 * time.Minute)},
		{"no seconds", "2024-03-01 00:10", t0.Add(10 * time.Minute)},
		{"day first", "01/03/2024 00:20", t0.Add(20 * time.Minute)},
		{"dotted", "01.03.2024 00:30:00", t0.Add(30 * time.Minute)},
		{"unix seconds", "1709251200", t0},
		{"unix millis", "1709251200000", t0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input, time.UTC)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := ParseTimestamp("yesterday", time.UTC)
	assert.ErrorIs(t, err, ErrTimestamp)
}

func TestParseTimestamp_Location(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	got, err := ParseTimestamp("2024-03-01 03:00:00", loc)
	require.NoError(t, err)
	assert.True(t, t0.Equal(got))
}

func TestReadCSV_Comma(t *testing.T) {
	input := "\ufefftimestamp,wind_speed,active_power,temperature\n" +
		"2024-03-01 00:00:00,8.5,900,285.1\n" +
		"2024-03-01 00:10:00,NaN,950,\n" +
		"\n" +
		"2024-03-01 00:20:00,9.1,,286\n"

	ds, err := ReadCSV(strings.NewReader(input), time.UTC)
	require.NoError(t, err)

	assert.Equal(t, []string{models.ColTimestamp, models.ColWindSpeed, models.ColActivePower, models.ColTemperature}, ds.Columns)
	require.Len(t, ds.Samples, 3)
	assert.True(t, t0.Equal(ds.Samples[0].Timestamp))
	require.NotNil(t, ds.Samples[0].WindSpeed)
	assert.Equal(t, 8.5, *ds.Samples[0].WindSpeed)
	assert.Equal(t, 285.1, *ds.Samples[0].Temperature)
	assert.Nil(t, ds.Samples[1].WindSpeed)
	assert.Nil(t, ds.Samples[1].Temperature)
	assert.Nil(t, ds.Samples[2].ActivePower)
	assert.Nil(t, ds.Samples[0].Pressure)
}

func TestReadCSV_SemicolonDecimalComma(t *testing.T) {
	input := "TIMESTAMP;WIND_SPEED;ACTIVE_POWER\n" +
		"01.03.2024 00:00;7,25;812,5\n" +
		"01.03.2024 00:10;7,5;830\n"

	ds, err := ReadCSV(strings.NewReader(input), time.UTC)
	require.NoError(t, err)
	require.Len(t, ds.Samples, 2)
	assert.Equal(t, 7.25, *ds.Samples[0].WindSpeed)
	assert.Equal(t, 812.5, *ds.Samples[0].ActivePower)
	assert.True(t, t0.Add(10*time.Minute).Equal(ds.Samples[1].Timestamp))
}

func TestReadCSV_UnknownColumnKept(t *testing.T) {
	input := "TIMESTAMP,WIND_SPEED,ACTIVE_POWER,ROTOR_RPM\n1709251200,8,900,14\n"

	ds, err := ReadCSV(strings.NewReader(input), time.UTC)
	require.NoError(t, err)
	assert.Contains(t, ds.Columns, "ROTOR_RPM")
	require.Len(t, ds.Samples, 1)
	assert.Equal(t, 900.0, *ds.Samples[0].ActivePower)
}

func TestReadCSV_Errors(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		_, err := ReadCSV(strings.NewReader(""), time.UTC)
		assert.ErrorIs(t, err, ErrNoHeader)
	})

	t.Run("bad timestamp reports row", func(t *testing.T) {
		input := "TIMESTAMP,WIND_SPEED,ACTIVE_POWER\n2024-03-01 00:00,8,900\nsoon,9,950\n"
		_, err := ReadCSV(strings.NewReader(input), time.UTC)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrTimestamp)
		assert.Contains(t, err.Error(), "row 3")
	})

	t.Run("bad number", func(t *testing.T) {
		input := "TIMESTAMP,WIND_SPEED,ACTIVE_POWER\n2024-03-01 00:00,fast,900\n"
		_, err := ReadCSV(strings.NewReader(input), time.UTC)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "WIND_SPEED")
	})
}

func TestReadCSV_MissingTimestampColumn(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("WIND_SPEED,ACTIVE_POWER\n8,900\n"), time.UTC)
	require.NoError(t, err)
	assert.Empty(t, ds.Samples)
	assert.False(t, ds.HasColumn(models.ColTimestamp))
}

func TestReadXLSX(t *testing.T) {
	book := excelize.NewFile()
	sheet := book.GetSheetName(0)
	rows := [][]any{
		{"TIMESTAMP", "WIND_SPEED", "ACTIVE_POWER", "PITCH_ANGLE"},
		{45352.0, 8.5, 900.0, 1.5},
		{45352.5, 10.0, 1500.0, nil},
		{"2024-03-02 00:00:00", 11.0, 1700.0, 2.0},
	}
	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, book.SetCellValue(sheet, cell, v))
		}
	}
	buf, err := book.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, book.Close())

	ds, err := ReadXLSX(buf, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, []string{models.ColTimestamp, models.ColWindSpeed, models.ColActivePower, models.ColPitchAngle}, ds.Columns)
	require.Len(t, ds.Samples, 3)
	assert.True(t, t0.Equal(ds.Samples[0].Timestamp), "got %s", ds.Samples[0].Timestamp)
	assert.True(t, t0.Add(12*time.Hour).Equal(ds.Samples[1].Timestamp))
	assert.True(t, t0.Add(24*time.Hour).Equal(ds.Samples[2].Timestamp))
	assert.Equal(t, 1.5, *ds.Samples[0].PitchAngle)
	assert.Nil(t, ds.Samples[1].PitchAngle)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "t01.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("TIMESTAMP,WIND_SPEED,ACTIVE_POWER\n2024-03-01 00:00,8,900\n"), 0o600))
	ds, err := ReadFile(csvPath, time.UTC)
	require.NoError(t, err)
	assert.Len(t, ds.Samples, 1)

	jsonPath := filepath.Join(dir, "t01.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0o600))
	_, err = ReadFile(jsonPath, time.UTC)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = ReadFile(filepath.Join(dir, "missing.csv"), time.UTC)
	assert.Error(t, err)
}

func TestMergeChannels(t *testing.T) {
	channels := map[string]io.Reader{
		"wind_speed": strings.NewReader("timestamp;value\n" +
			"2024-03-01 00:10:00;8,5\n" +
			"2024-03-01 00:00:00;8\n"),
		"active_power": strings.NewReader("2024-03-01 00:00:00,900\n" +
			"2024-03-01 00:20:00,1000\n"),
	}

	ds, err := MergeChannels(channels, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, []string{models.ColTimestamp, models.ColWindSpeed, models.ColActivePower}, ds.Columns)
	require.Len(t, ds.Samples, 3)
	assert.True(t, t0.Equal(ds.Samples[0].Timestamp))
	assert.Equal(t, 8.0, *ds.Samples[0].WindSpeed)
	assert.Equal(t, 900.0, *ds.Samples[0].ActivePower)
	assert.Equal(t, 8.5, *ds.Samples[1].WindSpeed)
	assert.Nil(t, ds.Samples[1].ActivePower)
	assert.Nil(t, ds.Samples[2].WindSpeed)
	assert.Equal(t, 1000.0, *ds.Samples[2].ActivePower)
}

func TestMergeChannels_MalformedLine(t *testing.T) {
	_, err := MergeChannels(map[string]io.Reader{
		"wind_speed": strings.NewReader("2024-03-01 00:00:00 8\n"),
	}, time.UTC)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestCanonicalOrder(t *testing.T) {
	got := canonicalOrder([]string{"ZETA", models.ColTemperature, models.ColActivePower, "ALPHA", models.ColTimestamp, models.ColActivePower})
	assert.Equal(t, []string{models.ColTimestamp, models.ColActivePower, models.ColTemperature, "ALPHA", "ZETA"}, got)
}
