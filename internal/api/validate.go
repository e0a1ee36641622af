package api

import (
	"fmt"
	"time"

	"freightpool/internal/colgen"
	"freightpool/internal/config"
	"freightpool/internal/opt"
	"freightpool/internal/pooling"
)

func validateLimit(ms *int64) (time.Duration, error) {
	if ms == nil {
		return 0, nil
	}
	if *ms < 0 {
		return 0, fmt.Errorf("timeLimitMs must be >= 0")
	}
	return time.Duration(*ms) * time.Millisecond, nil
}

func poolingOverrides(base pooling.Config, req *matchRequest) (pooling.Config, error) {
	cfg := base
	if err := overlay(req.Pooling, &cfg); err != nil {
		return cfg, fmt.Errorf("pooling: %w", err)
	}
	for k, p := range req.Probabilities {
		if p < 0 || p > 1 {
			return cfg, fmt.Errorf("probability for %q must be in [0,1]", k)
		}
	}
	return cfg, cfg.Validate()
}

func alnsOverrides(base opt.Config, raw []byte, ms *int64) (opt.Config, error) {
	cfg := base
	if err := overlay(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("alns: %w", err)
	}
	if ms != nil {
		d, err := validateLimit(ms)
		if err != nil {
			return cfg, err
		}
		cfg.TimeLimit = d
	}
	return cfg, cfg.Validate()
}

func colgenOverrides(base colgen.Config, raw []byte, ms *int64) (colgen.Config, error) {
	cfg := base
	if err := overlay(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("colgen: %w", err)
	}
	if ms != nil {
		d, err := validateLimit(ms)
		if err != nil {
			return cfg, err
		}
		cfg.TimeLimit = d
	}
	return cfg, cfg.Validate()
}

func planOverrides(base config.Optimizer, req *planRequest) (config.Optimizer, error) {
	cfg := base
	var err error
	if cfg.ALNS, err = alnsOverrides(base.ALNS, req.ALNS, nil); err != nil {
		return cfg, err
	}
	if cfg.ColGen, err = colgenOverrides(base.ColGen, req.ColGen, nil); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}
