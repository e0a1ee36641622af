package model

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

var opportunityNamespace = uuid.MustParse("6f1c5a52-8d0e-4c51-9d61-2f3b7a9e4c10")

// PoolingOpportunity is a priced group of shipments that can share one truck.
type PoolingOpportunity struct {
	ID              string   `json:"id"`
	ShipmentIDs     []string `json:"shipmentIds"`
	GeographicScore float64  `json:"geographicScore"`
	TemporalScore   float64  `json:"temporalScore"`
	CapacityScore   float64  `json:"capacityScore"`
	OverallScore    float64  `json:"overallScore"`
	Probability     float64  `json:"probability"`
	IndividualCost  float64  `json:"individualCost"`
	PooledCost      float64  `json:"pooledCost"`
	SavingsPercent  float64  `json:"savingsPercent"`
	CarrierID       string   `json:"carrierId,omitempty"`
	Estimated       bool     `json:"estimated,omitempty"`
	Route           *Route   `json:"route,omitempty"`
}

func (p PoolingOpportunity) TotalSavings() float64 { return p.IndividualCost - p.PooledCost }

// GroupKey is the order-independent key of a set of shipment IDs.
func GroupKey(ids []string) string {
	s := append([]string(nil), ids...)
	sort.Strings(s)
	return strings.Join(s, ",")
}

// OpportunityID derives a stable ID from the member set so repeated runs over
// the same input produce the same identifiers.
func OpportunityID(ids []string) string {
	return uuid.NewSHA1(opportunityNamespace, []byte(GroupKey(ids))).String()
}
