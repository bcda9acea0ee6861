package engine

import (
	"errors"
	"fmt"

	"turbine-wpa/internal/classifier"
	"turbine-wpa/internal/kpi"
	"turbine-wpa/internal/preprocess"
	"turbine-wpa/internal/turbine"
)

var (
	// ErrInvalidInput нарушен входной контракт, расчет не начинался
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientData данных недостаточно для надежного расчета
	ErrInsufficientData = errors.New("insufficient data")
)

// wrapStageError относит ошибку этапа к одному из классов
func wrapStageError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInsufficientData):
		return err
	case errors.Is(err, turbine.ErrSweptAreaRequired):
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case errors.Is(err, preprocess.ErrResolutionTooLow),
		errors.Is(err, turbine.ErrNoValidData),
		errors.Is(err, turbine.ErrNoConstantCandidate),
		errors.Is(err, classifier.ErrNoNormalCandidates),
		errors.Is(err, classifier.ErrBandCeiling),
		errors.Is(err, kpi.ErrNoNormalSamples):
		return fmt.Errorf("%w: %w", ErrInsufficientData, err)
	}
	return err
}

// outcome метка исхода для метрик
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInsufficientData):
		return "insufficient_data"
	}
	return "error"
}
