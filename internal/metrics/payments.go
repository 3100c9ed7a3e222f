package metrics

import (
	"encoding/json"
	"net/http"
)

// Payments counts what happened to payment initiations and gateway callbacks.
// A nil *Payments is valid and counts nothing.
type Payments struct {
	Initiations   Counter
	GatewayErrors Counter
	Callbacks     Counter
	Applied       Counter
	Orphans       Counter
	Duplicates    Counter
	Conflicts     Counter
	Swept         Counter
}

func NewPayments() *Payments {
	return &Payments{}
}

func (p *Payments) Inc(c func(*Payments) *Counter) {
	if p == nil {
		return
	}
	c(p).Inc()
}

type PaymentsSnapshot struct {
	Initiations   uint64 `json:"initiations"`
	GatewayErrors uint64 `json:"gateway_errors"`
	Callbacks     uint64 `json:"callbacks"`
	Applied       uint64 `json:"applied"`
	Orphans       uint64 `json:"orphans"`
	Duplicates    uint64 `json:"duplicates"`
	Conflicts     uint64 `json:"conflicts"`
	Swept         uint64 `json:"swept"`
}

func (p *Payments) Snapshot() PaymentsSnapshot {
	if p == nil {
		return PaymentsSnapshot{}
	}
	return PaymentsSnapshot{
		Initiations:   p.Initiations.Load(),
		GatewayErrors: p.GatewayErrors.Load(),
		Callbacks:     p.Callbacks.Load(),
		Applied:       p.Applied.Load(),
		Orphans:       p.Orphans.Load(),
		Duplicates:    p.Duplicates.Load(),
		Conflicts:     p.Conflicts.Load(),
		Swept:         p.Swept.Load(),
	}
}

// Handler serves the current snapshot as JSON.
func (p *Payments) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.Snapshot())
	}
}

// Accessors for Inc.
func Initiations(p *Payments) *Counter   { return &p.Initiations }
func GatewayErrors(p *Payments) *Counter { return &p.GatewayErrors }
func Callbacks(p *Payments) *Counter     { return &p.Callbacks }
func Applied(p *Payments) *Counter       { return &p.Applied }
func Orphans(p *Payments) *Counter       { return &p.Orphans }
func Duplicates(p *Payments) *Counter    { return &p.Duplicates }
func Conflicts(p *Payments) *Counter     { return &p.Conflicts }
func Swept(p *Payments) *Counter         { return &p.Swept }
