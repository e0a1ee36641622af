// Package colgen solves large consolidation instances by column generation
// over a set-partitioning master problem.
package colgen

import (
	"sort"
	"strconv"
	"strings"

	"freightpool/internal/route"
)

// Column is one candidate route: a shipment set with a fixed cost.
type Column struct {
	ID          int           `json:"id"`
	Shipments   []int         `json:"shipments"`
	Visits      []route.Visit `json:"-"`
	Distance    float64       `json:"distanceMiles"`
	Cost        float64       `json:"cost"`
	ReducedCost float64       `json:"reducedCost"`
}

func columnKey(members []int) string {
	s := append([]int(nil), members...)
	sort.Ints(s)
	var b strings.Builder
	for i, m := range s {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(m))
	}
	return b.String()
}

// master holds the column pool. Columns are only ever added.
type master struct {
	n       int
	columns []Column
	keys    map[string]int
}

func newMaster(n int) *master {
	return &master{n: n, keys: make(map[string]int)}
}

func (m *master) has(members []int) bool {
	_, ok := m.keys[columnKey(members)]
	return ok
}

// add appends c unless a column with the same shipment set exists.
func (m *master) add(c Column) bool {
	k := columnKey(c.Shipments)
	if _, ok := m.keys[k]; ok {
		return false
	}
	c.ID = len(m.columns)
	c.Shipments = append([]int(nil), c.Shipments...)
	sort.Ints(c.Shipments)
	m.keys[k] = c.ID
	m.columns = append(m.columns, c)
	return true
}

type masterSolution struct {
	Selected  []int
	Duals     []float64
	Objective float64
	Covered   []bool
}

// solve picks columns greedily by cost per newly covered shipment. Only
// columns disjoint from what is already covered qualify, so the selection
// partitions the covered shipments. Each shipment's dual is its share of the
// cost of the column that covers it.
func (m *master) solve() masterSolution {
	sol := masterSolution{Duals: make([]float64, m.n), Covered: make([]bool, m.n)}
	used := make([]bool, len(m.columns))
	for {
		best := -1
		bestRatio := 0.0
		for i, c := range m.columns {
			if used[i] || !disjoint(c.Shipments, sol.Covered) {
				continue
			}
			ratio := c.Cost / float64(len(c.Shipments))
			if best < 0 || ratio < bestRatio-1e-12 {
				best, bestRatio = i, ratio
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		c := m.columns[best]
		sol.Selected = append(sol.Selected, best)
		sol.Objective += c.Cost
		for _, s := range c.Shipments {
			sol.Covered[s] = true
			sol.Duals[s] = bestRatio
		}
	}
	return sol
}

func disjoint(members []int, covered []bool) bool {
	for _, s := range members {
		if covered[s] {
			return false
		}
	}
	return true
}
