package models

import (
	"encoding/json"
	"fmt"
)

// Status рабочее состояние турбины для одного отсчета
type Status int

// Коды состояний фиксированы и публикуются в легенде
const (
	StatusNormal Status = iota
	StatusMeasurementError
	StatusStop
	StatusPartialStop
	StatusCurtailment
	StatusPartialCurtailment
	StatusOverproduction
	StatusUnderproduction
	StatusUnknown
)

var statusNames = [...]string{
	"NORMAL",
	"MEASUREMENT_ERROR",
	"STOP",
	"PARTIAL_STOP",
	"CURTAILMENT",
	"PARTIAL_CURTAILMENT",
	"OVERPRODUCTION",
	"UNDERPRODUCTION",
	"UNKNOWN",
}

// LegendStatuses состояния, которые могут остаться после классификации
var LegendStatuses = []Status{
	StatusNormal, StatusMeasurementError, StatusStop, StatusPartialStop,
	StatusCurtailment, StatusPartialCurtailment, StatusOverproduction, StatusUnderproduction,
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Code числовой код состояния
func (s Status) Code() int { return int(s) }

// Valid проверяет, что состояние входит в перечисление
func (s Status) Valid() bool { return s >= StatusNormal && s <= StatusUnknown }

// ParseStatus разбирает имя состояния
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusUnknown, fmt.Errorf("unknown status %q", name)
}

// MarshalJSON кодирует состояние числовым кодом
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

// UnmarshalJSON принимает код или имя
func (s *Status) UnmarshalJSON(data []byte) error {
	var code int
	if err := json.Unmarshal(data, &code); err == nil {
		st := Status(code)
		if !st.Valid() {
			return fmt.Errorf("unknown status code %d", code)
		}
		*s = st
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	st, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// StatusLegend легенда код -> имя
func StatusLegend() map[int]string {
	legend := make(map[int]string, len(LegendStatuses))
	for _, s := range LegendStatuses {
		legend[s.Code()] = s.String()
	}
	return legend
}
