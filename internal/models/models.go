package models

import (
	"math"
	"time"
)

// Названия колонок входного набора данных
const (
	ColTimestamp        = "TIMESTAMP"
	ColWindSpeed        = "WIND_SPEED"
	ColActivePower      = "ACTIVE_POWER"
	ColDirectionNacelle = "DIRECTION_NACELLE"
	ColDirectionWind    = "DIRECTION_WIND"
	ColPitchAngle       = "PITCH_ANGLE"
	ColHumidity         = "HUMIDITY"
	ColPressure         = "PRESSURE"
	ColTemperature      = "TEMPERATURE"
)

// RequiredColumns обязательные колонки
var RequiredColumns = []string{ColTimestamp, ColWindSpeed, ColActivePower}

// OptionalColumns необязательные колонки
var OptionalColumns = []string{
	ColDirectionNacelle, ColDirectionWind, ColPitchAngle,
	ColHumidity, ColPressure, ColTemperature,
}

// Sample одно измерение SCADA
type Sample struct {
	Timestamp        time.Time `json:"timestamp"`
	WindSpeed        *float64  `json:"wind_speed"`
	ActivePower      *float64  `json:"active_power"`
	WindDirection    *float64  `json:"wind_direction,omitempty"`
	NacelleDirection *float64  `json:"nacelle_direction,omitempty"`
	PitchAngle       *float64  `json:"pitch_angle,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	Pressure         *float64  `json:"pressure,omitempty"`
	Humidity         *float64  `json:"humidity,omitempty"`
}

// Dataset входной набор данных турбины
type Dataset struct {
	Columns []string `json:"columns"`
	Samples []Sample `json:"samples"`
}

// HasColumn проверяет наличие колонки
func (d Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ConstantsInput константы турбины, переданные клиентом
type ConstantsInput struct {
	VCutin    *float64 `json:"V_cutin,omitempty"`
	VCutout   *float64 `json:"V_cutout,omitempty"`
	VRated    *float64 `json:"V_rated,omitempty"`
	PRated    *float64 `json:"P_rated,omitempty"`
	SweptArea *float64 `json:"Swept_area,omitempty"`
}

// Complete true если заданы все четыре оцениваемые константы
func (c ConstantsInput) Complete() bool {
	return c.VCutin != nil && c.VCutout != nil && c.VRated != nil && c.PRated != nil
}

// Constants эффективные константы турбины для окна расчета
type Constants struct {
	VCutin    float64  `json:"V_cutin"`
	VCutout   float64  `json:"V_cutout"`
	VRated    float64  `json:"V_rated"`
	PRated    float64  `json:"P_rated"`
	SweptArea float64  `json:"Swept_area"`
	Estimated []string `json:"estimated,omitempty"`
}

// CurvePoint точка кривой мощности
type CurvePoint struct {
	WindSpeed   float64 `json:"wind_speed"`
	ActivePower float64 `json:"active_power"`
	Count       int     `json:"count"`
}

// PowerCurves кривые по группировкам: global/yearly/quarterly/monthly/day_night
type PowerCurves map[string]map[string][]CurvePoint

// ClassificationPoint точка классификации
type ClassificationPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	WindSpeed   *float64  `json:"wind_speed"`
	ActivePower *float64  `json:"active_power"`
	Status      Status    `json:"classification"`
}

// Classification сводка классификации
type Classification struct {
	Counts      map[string]int        `json:"counts"`
	Percentages map[string]float64    `json:"percentages"`
	Points      []ClassificationPoint `json:"points"`
	Legend      map[int]string        `json:"legend"`
}

// CapacityFactorBin коэффициент использования для бина скорости
type CapacityFactorBin struct {
	WindSpeed      float64 `json:"wind_speed"`
	CapacityFactor float64 `json:"capacity_factor"`
}

// DailyProduction суточная выработка, kWh
type DailyProduction struct {
	Date   string  `json:"date"`
	Energy float64 `json:"energy"`
}

// YawMisalignment статистика рассогласования гондолы
type YawMisalignment struct {
	BinEdges []float64 `json:"bin_edges"`
	Counts   []int     `json:"counts"`
	Mean     float64   `json:"mean"`
	Median   float64   `json:"median"`
	StdDev   float64   `json:"std"`
}

// Indicators агрегированные KPI окна
type Indicators struct {
	AverageWindSpeed       float64  `json:"average_wind_speed"`
	ReachableEnergy        float64  `json:"reachable_energy"`
	RealEnergy             float64  `json:"real_energy"`
	LossEnergy             float64  `json:"loss_energy"`
	LossPercent            *float64 `json:"loss_percent"`
	RatedPower             float64  `json:"rated_power"`
	Tba                    *float64 `json:"tba"`
	Pba                    *float64 `json:"pba"`
	StopLoss               float64  `json:"stop_loss"`
	PartialStopLoss        float64  `json:"partial_stop_loss"`
	UnderProductionLoss    float64  `json:"under_production_loss"`
	CurtailmentLoss        float64  `json:"curtailment_loss"`
	PartialCurtailmentLoss float64  `json:"partial_curtailment_loss"`
	EnergyModel            string   `json:"energy_model"`

	TotalStopPoints               int `json:"total_stop_points"`
	TotalPartialStopPoints        int `json:"total_partial_stop_points"`
	TotalUnderProductionPoints    int `json:"total_under_production_points"`
	TotalCurtailmentPoints        int `json:"total_curtailment_points"`
	TotalPartialCurtailmentPoints int `json:"total_partial_curtailment_points"`

	TimeStep             float64 `json:"time_step"`
	TotalDuration        float64 `json:"total_duration"`
	DurationWithoutError float64 `json:"duration_without_error"`
	UpPeriodsCount       int     `json:"up_periods_count"`
	DownPeriodsCount     int     `json:"down_periods_count"`
	UpPeriodsDuration    float64 `json:"up_periods_duration"`
	DownPeriodsDuration  float64 `json:"down_periods_duration"`

	FailureCount  int      `json:"failure_count"`
	TotalDownTime float64  `json:"total_down_time"`
	TotalUpTime   float64  `json:"total_up_time"`
	MTTR          *float64 `json:"mttr"`
	MTTF          *float64 `json:"mttf"`
	MTBF          *float64 `json:"mtbf"`

	WeibullShape            *float64           `json:"weibull_shape"`
	WeibullScale            *float64           `json:"weibull_scale"`
	AEPRayleighMeasured     map[string]float64 `json:"aep_rayleigh_measured"`
	AEPRayleighExtrapolated map[string]float64 `json:"aep_rayleigh_extrapolated"`
	AEPWeibull              *float64           `json:"aep_weibull"`

	YawLag          *float64            `json:"yaw_lag"`
	YawMisalignment *YawMisalignment    `json:"yaw_misalignment,omitempty"`
	CapacityFactor  []CapacityFactorBin `json:"capacity_factor"`
	DailyProduction []DailyProduction   `json:"daily_production"`
}

// Result результат расчета окна
type Result struct {
	ComputationID  string         `json:"computation_id"`
	TurbineID      string         `json:"turbine_id"`
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	Constants      Constants      `json:"constants"`
	PowerCurves    PowerCurves    `json:"power_curves"`
	Indicators     Indicators     `json:"indicators"`
	Classification Classification `json:"classification"`
}

// OptionalFloat возвращает nil для NaN и Inf
func OptionalFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Float64 указатель на значение
func Float64(v float64) *float64 {
	return &v
}
