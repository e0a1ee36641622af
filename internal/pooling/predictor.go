package pooling

import "freightpool/internal/model"

// Predictor supplies an externally resolved pooling probability for a group.
// ok is false when it has no opinion and the heuristic estimate applies.
type Predictor interface {
	Predict(group []model.Shipment) (p float64, ok bool)
}

// StaticPredictor answers from probabilities keyed by model.GroupKey.
type StaticPredictor map[string]float64

func (s StaticPredictor) Predict(group []model.Shipment) (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	ids := make([]string, len(group))
	for i, sh := range group {
		ids[i] = sh.ID
	}
	p, ok := s[model.GroupKey(ids)]
	return p, ok
}

// PredictorFunc adapts a function to Predictor.
type PredictorFunc func(group []model.Shipment) (float64, bool)

func (f PredictorFunc) Predict(group []model.Shipment) (float64, bool) { return f(group) }
