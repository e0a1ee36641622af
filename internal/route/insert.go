package route

import (
	"math"

	"freightpool/internal/model"
)

// Insertion is a priced sequence produced by inserting one shipment.
type Insertion struct {
	Visits        []Visit
	DistanceMiles float64
	// Added is the distance increase over the sequence before insertion.
	Added float64
}

// Insert finds the cheapest feasible pickup/delivery position pair for
// all[add] in seq. seq must itself be feasible (or empty).
func (b *Builder) Insert(all []model.Shipment, seq []Visit, add int, lim Limits, depot *model.Location) (Insertion, error) {
	ins, f := b.insert(all, seq, add, lim, depot)
	if !f.ok() {
		return Insertion{}, f.err(all)
	}
	return ins, nil
}

func (b *Builder) insert(all []model.Shipment, seq []Visit, add int, lim Limits, depot *model.Location) (Insertion, failure) {
	n := len(seq)
	baseDist := 0.0
	if n > 0 {
		ev, f := b.schedule(all, seq, lim, depot, nil)
		if !f.ok() {
			return Insertion{}, f
		}
		baseDist = ev.dist
	}
	sh := &all[add]
	if !lim.Fits(sh.WeightLbs, sh.LinearFeet) {
		return Insertion{}, failure{CapacityExceeded, add}
	}
	pLoc, dLoc := sh.Origin, sh.Destination
	pv, dv := Visit{Shipment: add, Kind: model.Pickup}, Visit{Shipment: add, Kind: model.Delivery}

	// at returns the location occupying original position k; -1 and n are the
	// depot anchors when present.
	at := func(k int) (model.Location, bool) {
		if k >= 0 && k < n {
			loc, _ := stopOf(all, seq[k])
			return loc, true
		}
		if depot != nil && (k < 0 || b.p.ReturnToDepot) {
			return *depot, true
		}
		return model.Location{}, false
	}
	edge := func(a model.Location, aok bool, c model.Location, cok bool) float64 {
		if !aok || !cok {
			return 0
		}
		return a.MilesTo(c)
	}

	buf := make([]Visit, n+2)
	best := Insertion{Added: math.Inf(1)}
	var fail failure
	for i := 0; i <= n; i++ {
		prev, prevOK := at(i - 1)
		next, nextOK := at(i)
		pickupDelta := edge(prev, prevOK, pLoc, true) + edge(pLoc, true, next, nextOK) - edge(prev, prevOK, next, nextOK)
		for j := i; j <= n; j++ {
			var delta float64
			if j == i {
				delta = edge(prev, prevOK, pLoc, true) + pLoc.MilesTo(dLoc) + edge(dLoc, true, next, nextOK) - edge(prev, prevOK, next, nextOK)
			} else {
				dp, dpOK := at(j - 1)
				dn, dnOK := at(j)
				delta = pickupDelta + edge(dp, dpOK, dLoc, true) + edge(dLoc, true, dn, dnOK) - edge(dp, dpOK, dn, dnOK)
			}
			if delta >= best.Added-eps {
				continue
			}
			k := 0
			for x := 0; x < n; x++ {
				if x == i {
					buf[k] = pv
					k++
				}
				if x == j {
					buf[k] = dv
					k++
				}
				buf[k] = seq[x]
				k++
			}
			if i == n {
				buf[k] = pv
				k++
			}
			if j == n {
				buf[k] = dv
			}
			ev, f := b.schedule(all, buf, lim, depot, nil)
			if !f.ok() {
				fail = fail.merge(f)
				continue
			}
			best = Insertion{
				Visits:        append([]Visit(nil), buf...),
				DistanceMiles: ev.dist,
				Added:         ev.dist - baseDist,
			}
		}
	}
	if best.Visits == nil {
		if fail.ok() {
			fail = failure{InvalidSequence, add}
		}
		return Insertion{}, fail
	}
	return best, failure{}
}

// Sequence orders members (indices into all) by cheapest insertion and
// returns the resulting visits and distance. Among equally cheap shipments
// the one with the earlier delivery deadline goes first.
func (b *Builder) Sequence(all []model.Shipment, members []int, lim Limits, depot *model.Location) ([]Visit, float64, error) {
	if len(members) == 0 {
		return nil, 0, &InfeasibleError{Reason: EmptyRoute}
	}
	remaining := append([]int(nil), members...)
	var seq []Visit
	dist := 0.0
	for len(remaining) > 0 {
		bestK := -1
		var bestIns Insertion
		var fail failure
		for k, s := range remaining {
			ins, f := b.insert(all, seq, s, lim, depot)
			if !f.ok() {
				fail = fail.merge(f)
				continue
			}
			if bestK < 0 || ins.Added < bestIns.Added-eps ||
				(math.Abs(ins.Added-bestIns.Added) <= eps && earlierDeadline(all[s], all[remaining[bestK]])) {
				bestK = k
				bestIns = ins
			}
		}
		if bestK < 0 {
			return nil, 0, fail.err(all)
		}
		seq = bestIns.Visits
		dist = bestIns.DistanceMiles
		remaining = append(remaining[:bestK], remaining[bestK+1:]...)
	}
	if b.p.Improve {
		seq, dist = b.improve(all, seq, dist, lim, depot)
	}
	return seq, dist, nil
}

func earlierDeadline(a, c model.Shipment) bool {
	return a.DeliveryWindow.Latest().Before(c.DeliveryWindow.Latest())
}
