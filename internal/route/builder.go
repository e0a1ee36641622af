// Package route builds feasible pickup-and-delivery routes for one vehicle.
//
// A route is a sequence of Visits over a caller-owned shipment slice. Every
// pickup precedes its delivery, load stays within Limits at every prefix, each
// stop is reached inside its window (waiting up to MaxWaitMinutes when early)
// and the whole trip respects the duration and distance caps.
package route

import (
	"errors"
	"fmt"
	"time"

	"freightpool/internal/model"
)

const eps = 1e-9

// Params are the physical assumptions shared by every route built.
type Params struct {
	SpeedMph         float64 `json:"speedMph" yaml:"speedMph"`
	ServiceMinutes   float64 `json:"serviceMinutes" yaml:"serviceMinutes"`
	MaxWaitMinutes   float64 `json:"maxWaitMinutes" yaml:"maxWaitMinutes"`
	MaxDurationHours float64 `json:"maxDurationHours" yaml:"maxDurationHours"`
	MaxDistanceMiles float64 `json:"maxDistanceMiles" yaml:"maxDistanceMiles"`
	ReturnToDepot    bool    `json:"returnToDepot" yaml:"returnToDepot"`
	Improve          bool    `json:"improve" yaml:"improve"`
}

func DefaultParams() Params {
	return Params{
		SpeedMph:         50,
		ServiceMinutes:   30,
		MaxWaitMinutes:   60,
		MaxDurationHours: 14,
		MaxDistanceMiles: 800,
		Improve:          true,
	}
}

func (p Params) Validate() error {
	switch {
	case p.SpeedMph <= 0:
		return errors.New("routing: speedMph must be positive")
	case p.ServiceMinutes < 0:
		return errors.New("routing: serviceMinutes must be >= 0")
	case p.MaxWaitMinutes < 0:
		return errors.New("routing: maxWaitMinutes must be >= 0")
	case p.MaxDurationHours <= 0:
		return errors.New("routing: maxDurationHours must be positive")
	case p.MaxDistanceMiles <= 0:
		return errors.New("routing: maxDistanceMiles must be positive")
	}
	return nil
}

// Limits is the vehicle capacity a route must respect.
type Limits struct {
	MaxWeightLbs  float64 `json:"maxWeightLbs" yaml:"maxWeightLbs"`
	MaxLinearFeet float64 `json:"maxLinearFeet" yaml:"maxLinearFeet"`
}

func LimitsFor(c model.Carrier) Limits {
	return Limits{MaxWeightLbs: c.MaxWeightLbs, MaxLinearFeet: c.MaxLinearFeet}
}

// Fits reports whether a load of the given size fits at once.
func (l Limits) Fits(weightLbs, linearFeet float64) bool {
	return weightLbs <= l.MaxWeightLbs+eps && linearFeet <= l.MaxLinearFeet+eps
}

// Visit is one stop of a sequence: the pickup or delivery of all[Shipment].
type Visit struct {
	Shipment int            `json:"shipment"`
	Kind     model.StopKind `json:"kind"`
}

// Reason classifies why no feasible route exists.
type Reason int

const (
	reasonNone Reason = iota
	CapacityExceeded
	TimeWindowViolated
	MaxDurationExceeded
	MaxDistanceExceeded
	InvalidSequence
	EmptyRoute
)

func (r Reason) String() string {
	switch r {
	case CapacityExceeded:
		return "capacity_exceeded"
	case TimeWindowViolated:
		return "time_window_violated"
	case MaxDurationExceeded:
		return "max_duration_exceeded"
	case MaxDistanceExceeded:
		return "max_distance_exceeded"
	case InvalidSequence:
		return "invalid_sequence"
	case EmptyRoute:
		return "empty_route"
	}
	return "none"
}

// InfeasibleError is the typed result returned when no route satisfies the constraints.
type InfeasibleError struct {
	Reason     Reason
	ShipmentID string
}

func (e *InfeasibleError) Error() string {
	if e.ShipmentID == "" {
		return "route infeasible: " + e.Reason.String()
	}
	return fmt.Sprintf("route infeasible: %s (shipment %s)", e.Reason, e.ShipmentID)
}

// AsInfeasible unwraps an *InfeasibleError from err.
func AsInfeasible(err error) (*InfeasibleError, bool) {
	var ie *InfeasibleError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// failure is the allocation-free form of InfeasibleError used in inner loops.
type failure struct {
	reason Reason
	ship   int
}

func (f failure) ok() bool { return f.reason == reasonNone }

// merge keeps the highest-priority reason seen; capacity outranks time.
func (f failure) merge(o failure) failure {
	if o.reason == reasonNone {
		return f
	}
	if f.reason == reasonNone || o.reason < f.reason {
		return o
	}
	return f
}

func (f failure) err(all []model.Shipment) error {
	e := &InfeasibleError{Reason: f.reason}
	if f.ship >= 0 && f.ship < len(all) {
		e.ShipmentID = all[f.ship].ID
	}
	return e
}

// Builder prices and constructs routes. It holds only immutable parameters
// and is safe for concurrent use.
type Builder struct {
	p Params
}

func NewBuilder(p Params) (*Builder, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Builder{p: p}, nil
}

// MustBuilder panics on invalid params; for defaults and tests.
func MustBuilder(p Params) *Builder {
	b, err := NewBuilder(p)
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Builder) Params() Params { return b.p }

func (b *Builder) travel(miles float64) time.Duration {
	return time.Duration(miles / b.p.SpeedMph * float64(time.Hour))
}

func stopOf(all []model.Shipment, v Visit) (model.Location, model.TimeWindow) {
	sh := &all[v.Shipment]
	if v.Kind == model.Delivery {
		return sh.Destination, sh.DeliveryWindow
	}
	return sh.Origin, sh.PickupWindow
}

type eval struct {
	dist       float64
	start, end time.Time
	peakWeight float64
	peakFeet   float64
}

// checkPairs validates precedence and completeness of seq.
func checkPairs(seq []Visit) failure {
	for j, v := range seq {
		switch v.Kind {
		case model.Pickup:
			later := 0
			for k := range seq {
				if seq[k].Shipment != v.Shipment {
					continue
				}
				if seq[k].Kind == model.Pickup && k != j {
					return failure{InvalidSequence, v.Shipment}
				}
				if seq[k].Kind == model.Delivery && k > j {
					later++
				}
			}
			if later != 1 {
				return failure{InvalidSequence, v.Shipment}
			}
		case model.Delivery:
			found := false
			for k := 0; k < j; k++ {
				if seq[k].Shipment == v.Shipment && seq[k].Kind == model.Pickup {
					found = true
					break
				}
			}
			if !found {
				return failure{InvalidSequence, v.Shipment}
			}
		}
	}
	return failure{}
}

// schedule walks seq once, enforcing every constraint. When stops is non-nil
// the scheduled stops are appended to it.
func (b *Builder) schedule(all []model.Shipment, seq []Visit, lim Limits, depot *model.Location, stops *[]model.Stop) (eval, failure) {
	var ev eval
	if len(seq) == 0 {
		return ev, failure{EmptyRoute, -1}
	}
	if f := checkPairs(seq); !f.ok() {
		return ev, f
	}
	service := time.Duration(b.p.ServiceMinutes * float64(time.Minute))
	maxWait := time.Duration(b.p.MaxWaitMinutes * float64(time.Minute))

	cur, firstWin := stopOf(all, seq[0])
	t := firstWin.Earliest()
	if depot != nil {
		lead := depot.MilesTo(cur)
		t = t.Add(-b.travel(lead))
		cur = *depot
	}
	ev.start = t
	var w, f float64
	for i, v := range seq {
		loc, win := stopOf(all, v)
		d := cur.MilesTo(loc)
		ev.dist += d
		if ev.dist > b.p.MaxDistanceMiles+eps {
			return ev, failure{MaxDistanceExceeded, v.Shipment}
		}
		arrive := t.Add(b.travel(d))
		if arrive.After(win.Latest()) {
			return ev, failure{TimeWindowViolated, v.Shipment}
		}
		begin := arrive
		if arrive.Before(win.Earliest()) {
			if win.Earliest().Sub(arrive) > maxWait {
				return ev, failure{TimeWindowViolated, v.Shipment}
			}
			begin = win.Earliest()
		}
		t = begin.Add(service)
		sh := &all[v.Shipment]
		if v.Kind == model.Pickup {
			w += sh.WeightLbs
			f += sh.LinearFeet
			if !lim.Fits(w, f) {
				return ev, failure{CapacityExceeded, v.Shipment}
			}
			if w > ev.peakWeight {
				ev.peakWeight = w
			}
			if f > ev.peakFeet {
				ev.peakFeet = f
			}
		} else {
			w -= sh.WeightLbs
			f -= sh.LinearFeet
		}
		if stops != nil {
			*stops = append(*stops, model.Stop{
				Location:     loc,
				ShipmentID:   sh.ID,
				Kind:         v.Kind,
				Sequence:     i,
				Arrival:      arrive,
				ServiceStart: begin,
				Departure:    t,
				Window:       win,
			})
		}
		cur = loc
	}
	if depot != nil && b.p.ReturnToDepot {
		d := cur.MilesTo(*depot)
		ev.dist += d
		t = t.Add(b.travel(d))
		if ev.dist > b.p.MaxDistanceMiles+eps {
			return ev, failure{MaxDistanceExceeded, -1}
		}
	}
	ev.end = t
	if ev.end.Sub(ev.start).Hours() > b.p.MaxDurationHours+eps {
		return ev, failure{MaxDurationExceeded, seq[len(seq)-1].Shipment}
	}
	return ev, failure{}
}

// Distance prices a fixed sequence without materializing stops.
func (b *Builder) Distance(all []model.Shipment, seq []Visit, lim Limits, depot *model.Location) (float64, error) {
	ev, f := b.schedule(all, seq, lim, depot, nil)
	if !f.ok() {
		return 0, f.err(all)
	}
	return ev.dist, nil
}

// Evaluate schedules a fixed stop order and returns the resulting route.
func (b *Builder) Evaluate(all []model.Shipment, seq []Visit, lim Limits, depot *model.Location) (model.Route, error) {
	stops := make([]model.Stop, 0, len(seq))
	ev, f := b.schedule(all, seq, lim, depot, &stops)
	if !f.ok() {
		return model.Route{}, f.err(all)
	}
	r := model.Route{
		Stops:         stops,
		ShipmentIDs:   make([]string, 0, len(seq)/2),
		DistanceMiles: ev.dist,
		DurationHours: ev.end.Sub(ev.start).Hours(),
	}
	for _, st := range stops {
		if st.Kind == model.Pickup {
			r.ShipmentIDs = append(r.ShipmentIDs, st.ShipmentID)
		}
	}
	if lim.MaxWeightLbs > 0 {
		r.WeightUtilization = ev.peakWeight / lim.MaxWeightLbs
	}
	if lim.MaxLinearFeet > 0 {
		r.FootprintUtilization = ev.peakFeet / lim.MaxLinearFeet
	}
	r.Utilization = max(r.WeightUtilization, r.FootprintUtilization)
	return r, nil
}

// Build sequences every shipment in shipments onto one route.
func (b *Builder) Build(shipments []model.Shipment, lim Limits, depot *model.Location) (model.Route, error) {
	members := make([]int, len(shipments))
	for i := range members {
		members[i] = i
	}
	seq, _, err := b.Sequence(shipments, members, lim, depot)
	if err != nil {
		return model.Route{}, err
	}
	return b.Evaluate(shipments, seq, lim, depot)
}
