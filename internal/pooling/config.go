package pooling

import (
	"errors"
	"fmt"
)

// Config sets the compatibility thresholds and pricing inputs of the matcher.
type Config struct {
	MaxOriginDistanceMiles float64 `json:"maxOriginDistanceMiles" yaml:"maxOriginDistanceMiles"`
	MaxDestDistanceMiles   float64 `json:"maxDestDistanceMiles" yaml:"maxDestDistanceMiles"`
	MinTimeOverlapHours    float64 `json:"minTimeOverlapHours" yaml:"minTimeOverlapHours"`
	MaxShipmentsPerPool    int     `json:"maxShipmentsPerPool" yaml:"maxShipmentsPerPool"`
	MaxTotalWeightLbs      float64 `json:"maxTotalWeightLbs" yaml:"maxTotalWeightLbs"`
	MaxTotalLinearFeet     float64 `json:"maxTotalLinearFeet" yaml:"maxTotalLinearFeet"`
	TargetUtilizationMin   float64 `json:"targetUtilizationMin" yaml:"targetUtilizationMin"`
	TargetUtilizationMax   float64 `json:"targetUtilizationMax" yaml:"targetUtilizationMax"`
	MinSavingsPercent      float64 `json:"minSavingsPercent" yaml:"minSavingsPercent"`
	MinPoolingProbability  float64 `json:"minPoolingProbability" yaml:"minPoolingProbability"`
	CostPerMile            float64 `json:"costPerMile" yaml:"costPerMile"`
	DispatchCost           float64 `json:"dispatchCost" yaml:"dispatchCost"`
	PooledDistanceFactor   float64 `json:"pooledDistanceFactor" yaml:"pooledDistanceFactor"`
	Workers                int     `json:"workers" yaml:"workers"`
}

func DefaultConfig() Config {
	return Config{
		MaxOriginDistanceMiles: 50,
		MaxDestDistanceMiles:   50,
		MinTimeOverlapHours:    2,
		MaxShipmentsPerPool:    4,
		MaxTotalWeightLbs:      45000,
		MaxTotalLinearFeet:     53,
		TargetUtilizationMin:   0.7,
		TargetUtilizationMax:   0.95,
		MinSavingsPercent:      10,
		MinPoolingProbability:  0.5,
		CostPerMile:            2.5,
		DispatchCost:           50,
		PooledDistanceFactor:   0.7,
		Workers:                4,
	}
}

var ErrInvalidConfig = errors.New("invalid pooling config")

func (c Config) Validate() error {
	bad := func(msg string) error { return fmt.Errorf("%w: %s", ErrInvalidConfig, msg) }
	switch {
	case c.MaxOriginDistanceMiles <= 0 || c.MaxDestDistanceMiles <= 0:
		return bad("distance thresholds must be positive")
	case c.MinTimeOverlapHours < 0:
		return bad("minTimeOverlapHours must be >= 0")
	case c.MaxShipmentsPerPool < 2:
		return bad("maxShipmentsPerPool must be at least 2")
	case c.MaxTotalWeightLbs <= 0 || c.MaxTotalLinearFeet <= 0:
		return bad("vehicle limits must be positive")
	case c.TargetUtilizationMin <= 0 || c.TargetUtilizationMax < c.TargetUtilizationMin || c.TargetUtilizationMax > 1:
		return bad("target utilization band must satisfy 0 < min <= max <= 1")
	case c.MinPoolingProbability < 0 || c.MinPoolingProbability > 1:
		return bad("minPoolingProbability must be in [0,1]")
	case c.CostPerMile <= 0:
		return bad("costPerMile must be positive")
	case c.DispatchCost < 0:
		return bad("dispatchCost must be >= 0")
	case c.PooledDistanceFactor <= 0 || c.PooledDistanceFactor > 1:
		return bad("pooledDistanceFactor must be in (0,1]")
	case c.Workers < 0:
		return bad("workers must be >= 0")
	}
	return nil
}
