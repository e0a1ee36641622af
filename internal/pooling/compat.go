package pooling

import (
	"math"
	"time"

	"freightpool/internal/model"
)

// matrix is the dense pairwise compatibility table over the eligible shipments.
type matrix struct {
	n      int
	ok     []bool
	score  []float64
	degree []int
}

func (m *matrix) compatible(i, j int) bool { return m.ok[i*m.n+j] }
func (m *matrix) at(i, j int) float64      { return m.score[i*m.n+j] }

func (c Config) buildMatrix(ships []model.Shipment) *matrix {
	n := len(ships)
	m := &matrix{n: n, ok: make([]bool, n*n), score: make([]float64, n*n), degree: make([]int, n)}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s, ok := c.pairScore(ships[i], ships[j])
			if !ok {
				continue
			}
			m.ok[i*n+j], m.ok[j*n+i] = true, true
			m.score[i*n+j], m.score[j*n+i] = s, s
			m.degree[i]++
			m.degree[j]++
		}
	}
	return m
}

// pairScore applies the hard pairwise filters and returns the weighted
// compatibility score when they pass.
func (c Config) pairScore(a, b model.Shipment) (float64, bool) {
	if a.Equipment != b.Equipment {
		return 0, false
	}
	od := a.Origin.MilesTo(b.Origin)
	if od > c.MaxOriginDistanceMiles {
		return 0, false
	}
	dd := a.Destination.MilesTo(b.Destination)
	if dd > c.MaxDestDistanceMiles {
		return 0, false
	}
	overlap := a.PickupWindow.OverlapDuration(b.PickupWindow)
	if _, ok := a.PickupWindow.Intersection(b.PickupWindow); !ok || overlap.Hours() < c.MinTimeOverlapHours {
		return 0, false
	}
	w, f := a.WeightLbs+b.WeightLbs, a.LinearFeet+b.LinearFeet
	if w > c.MaxTotalWeightLbs || f > c.MaxTotalLinearFeet {
		return 0, false
	}
	geo := c.geoScore(od, dd)
	longest := max(a.PickupWindow.Duration(), b.PickupWindow.Duration())
	tscore := 0.0
	if longest > 0 {
		tscore = overlap.Hours() / longest.Hours()
	}
	return 0.4*geo + 0.3*tscore + 0.3*c.utilizationFit(w, f), true
}

func (c Config) geoScore(originMiles, destMiles float64) float64 {
	return clamp01(1 - (originMiles+destMiles)/(c.MaxOriginDistanceMiles+c.MaxDestDistanceMiles))
}

// utilization is the binding share of the vehicle: weight or footprint.
func (c Config) utilization(weight, feet float64) float64 {
	return max(weight/c.MaxTotalWeightLbs, feet/c.MaxTotalLinearFeet)
}

// utilizationFit peaks at 1 inside the target band.
func (c Config) utilizationFit(weight, feet float64) float64 {
	u := c.utilization(weight, feet)
	switch {
	case u >= c.TargetUtilizationMin && u <= c.TargetUtilizationMax:
		return 1
	case u > c.TargetUtilizationMax:
		return 0.5
	}
	return u / c.TargetUtilizationMin
}

type poolScores struct {
	geo, temporal, capacity float64
}

func (p poolScores) overall() float64 { return 0.4*p.geo + 0.3*p.temporal + 0.3*p.capacity }

// scorePool rates a whole group: mean pairwise geography, the common pickup
// window against the longest member window, and the utilization fit.
func (c Config) scorePool(group []model.Shipment) poolScores {
	var s poolScores
	var w, f float64
	for _, sh := range group {
		w += sh.WeightLbs
		f += sh.LinearFeet
	}
	s.capacity = c.utilizationFit(w, f)
	if len(group) < 2 {
		s.geo, s.temporal = 1, 1
		return s
	}
	var sumO, sumD float64
	pairs := 0
	for i := range group {
		for j := i + 1; j < len(group); j++ {
			sumO += group[i].Origin.MilesTo(group[j].Origin)
			sumD += group[i].Destination.MilesTo(group[j].Destination)
			pairs++
		}
	}
	s.geo = c.geoScore(sumO/float64(pairs), sumD/float64(pairs))

	common := group[0].PickupWindow
	var longest time.Duration
	ok := true
	for _, sh := range group {
		longest = max(longest, sh.PickupWindow.Duration())
		if ok {
			common, ok = common.Intersection(sh.PickupWindow)
		}
	}
	if ok && longest > 0 {
		s.temporal = common.Hours() / longest.Hours()
	}
	return s
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
