package ingest

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"turbine-wpa/internal/models"
)

// maxExcelSerial даты Excel до 2173 года; большие числа считаются unix-временем
const maxExcelSerial = 100000

// ReadXLSX читает первый лист книги с тем же контрактом заголовка, что и CSV.
// Ячейки даты Excel читаются как серийные номера.
func ReadXLSX(r io.Reader, loc *time.Location) (models.Dataset, error) {
	book, err := excelize.OpenReader(r)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return models.Dataset{}, ErrNoHeader
	}
	rows, err := book.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return models.Dataset{}, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return fromRecords(rows, loc, false, parseExcelTimestamp)
}

// parseExcelTimestamp серийный номер Excel в локации loc или текстовый формат
func parseExcelTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil && v > 0 && v < maxExcelSerial {
		t, err := excelize.ExcelDateToTime(v, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, s)
		}
		t = t.Round(time.Second)
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
	}
	return ParseTimestamp(s, loc)
}
