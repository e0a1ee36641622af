package engine

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"freightpool/internal/config"
	"freightpool/internal/model"
)

// validShipments drops shipments that fail validation or repeat an ID
// already seen, keeping input order.
func validShipments(in []model.Shipment) ([]model.Shipment, []model.RejectedInput) {
	out := make([]model.Shipment, 0, len(in))
	var rejected []model.RejectedInput
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		if err := s.Validate(); err != nil {
			rejected = append(rejected, model.RejectedInput{ID: s.ID, Reason: err.Error()})
			continue
		}
		if seen[s.ID] {
			rejected = append(rejected, model.RejectedInput{ID: s.ID, Reason: "duplicate shipment id"})
			continue
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	return out, rejected
}

func validCarriers(in []model.Carrier, l *log.Entry) []model.Carrier {
	out := make([]model.Carrier, 0, len(in))
	for _, c := range in {
		if err := c.Validate(); err != nil {
			l.WithField("carrier", c.ID).WithError(err).Warn("carrier skipped")
			continue
		}
		out = append(out, c)
	}
	return out
}

// groupIndices maps ID groups onto ships. IDs of rejected shipments are
// dropped; IDs never supplied at all are a caller error.
func groupIndices(groups [][]string, ships []model.Shipment, rejected []model.RejectedInput) ([][]int, error) {
	index := make(map[string]int, len(ships))
	for i, s := range ships {
		index[s.ID] = i
	}
	dropped := make(map[string]bool, len(rejected))
	for _, r := range rejected {
		dropped[r.ID] = true
	}
	out := make([][]int, 0, len(groups))
	for gi, g := range groups {
		idx := make([]int, 0, len(g))
		for _, id := range g {
			i, ok := index[id]
			switch {
			case ok:
				idx = append(idx, i)
			case dropped[id]:
			default:
				return nil, fmt.Errorf("%w: group %d: unknown shipment %q", config.ErrInvalid, gi, id)
			}
		}
		out = append(out, idx)
	}
	return out, nil
}
