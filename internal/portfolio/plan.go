package portfolio

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/fx"
	"github.com/newthinker/portsim/internal/schedule"
)

// Investment is how an asset is funded.
type Investment string

const (
	LumpSum Investment = "lump_sum"
	DCA     Investment = "dca"
)

// Kind distinguishes priced securities from cash holdings.
type Kind string

const (
	Security Kind = "security"
	Cash     Kind = "cash"
)

// AssetID is the stable index of an asset within a plan.
type AssetID int

// Request validation bounds. Weights are in percent.
const (
	minWeightSum  = 95.0
	maxWeightSum  = 105.0
	maxCommission = 0.1
)

// DefaultTotalAmount is the capital used when a request only gives weights.
const DefaultTotalAmount = 100.0

// AssetPlan is one line of a request. Exactly one of Amount and Weight is
// set. For DCA, Amount is the per-period amount.
type AssetPlan struct {
	Symbol     string           `json:"symbol"`
	Amount     float64          `json:"amount,omitempty"`
	Weight     float64          `json:"weight,omitempty"`
	Investment Investment       `json:"investment"`
	Cadence    schedule.Cadence `json:"cadence"`
	Periods    int              `json:"periods,omitempty"`
	Kind       Kind             `json:"kind"`
}

// Request describes one simulation.
type Request struct {
	Assets            []AssetPlan      `json:"assets"`
	Start             time.Time        `json:"start"`
	End               time.Time        `json:"end"`
	RebalanceCadence  schedule.Cadence `json:"rebalance_cadence"`
	CommissionRate    float64          `json:"commission_rate"`
	ReportingCurrency string           `json:"reporting_currency"`
	TotalAmount       float64          `json:"total_amount,omitempty"`
}

// Allocation is an AssetPlan resolved against the whole request.
type Allocation struct {
	AssetPlan
	ID           AssetID
	PeriodAmount float64 // amount invested per purchase
	Periods      int     // number of purchases, 1 for lump sums
	Total        float64 // committed capital
	TargetWeight float64 // fraction of the plan's committed capital
}

// Plan is a validated request with every asset resolved.
type Plan struct {
	Request   Request
	Assets    []Allocation
	Committed float64

	weighted bool
}

// Securities returns the IDs of security assets.
func (p *Plan) Securities() []AssetID {
	var ids []AssetID
	for _, a := range p.Assets {
		if a.Kind == Security {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// TargetWeights returns the configured weights indexed by AssetID.
func (p *Plan) TargetWeights() []float64 {
	w := make([]float64, len(p.Assets))
	for _, a := range p.Assets {
		w[a.ID] = a.TargetWeight
	}
	return w
}

func invalid(format string, args ...any) error {
	return core.WrapError(core.ErrConfigInvalid, fmt.Errorf(format, args...))
}

// NewPlan validates req and resolves per-asset amounts, periods and weights.
func NewPlan(req Request) (*Plan, error) {
	if len(req.Assets) == 0 {
		return nil, invalid("portfolio has no assets")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return nil, invalid("start and end dates are required")
	}
	req.Start, req.End = core.Day(req.Start), core.Day(req.End)
	if req.End.Before(req.Start) {
		return nil, invalid("end %s before start %s", req.End.Format(core.DateFormat), req.Start.Format(core.DateFormat))
	}
	if req.CommissionRate < 0 || req.CommissionRate >= maxCommission || math.IsNaN(req.CommissionRate) {
		return nil, invalid("commission rate %v outside [0, %v)", req.CommissionRate, maxCommission)
	}

	if req.ReportingCurrency == "" {
		req.ReportingCurrency = fx.USD
	}
	cur, err := fx.Normalize(req.ReportingCurrency)
	if err != nil {
		return nil, err
	}
	req.ReportingCurrency = cur

	var hasAmount, hasWeight bool
	var weightSum, amountSum float64
	seen := make(map[string]bool, len(req.Assets))
	assets := make([]AssetPlan, len(req.Assets))

	for i, a := range req.Assets {
		a.Symbol = strings.TrimSpace(a.Symbol)
		if a.Symbol == "" {
			return nil, invalid("asset %d has no symbol", i)
		}
		if a.Kind == "" {
			a.Kind = Security
		}
		if a.Kind == Security {
			a.Symbol = strings.ToUpper(a.Symbol)
		}
		if a.Kind != Security && a.Kind != Cash {
			return nil, invalid("%s: unknown asset kind %q", a.Symbol, a.Kind)
		}
		key := strings.ToUpper(a.Symbol)
		if seen[key] {
			return nil, invalid("duplicate symbol %s", a.Symbol)
		}
		seen[key] = true

		if a.Investment == "" {
			a.Investment = LumpSum
		}
		switch a.Investment {
		case LumpSum:
		case DCA:
			if a.Kind == Cash {
				return nil, invalid("%s: cash assets cannot use dca", a.Symbol)
			}
			if a.Cadence.IsNone() {
				a.Cadence = schedule.Monthly(1)
			}
			if a.Periods < 0 {
				return nil, invalid("%s: negative dca periods", a.Symbol)
			}
		default:
			return nil, invalid("%s: unknown investment type %q", a.Symbol, a.Investment)
		}

		if a.Amount < 0 || a.Weight < 0 || math.IsNaN(a.Amount) || math.IsNaN(a.Weight) {
			return nil, invalid("%s: amount and weight must not be negative", a.Symbol)
		}
		switch {
		case a.Amount > 0 && a.Weight > 0:
			return nil, invalid("%s: set either amount or weight, not both", a.Symbol)
		case a.Amount > 0:
			hasAmount = true
			amountSum += a.Amount
		case a.Weight > 0:
			hasWeight = true
			weightSum += a.Weight
		default:
			return nil, invalid("%s: amount or weight is required", a.Symbol)
		}
		assets[i] = a
	}

	if hasAmount && hasWeight {
		return nil, invalid("mixing amount and weight across assets is not allowed")
	}
	if hasWeight && (weightSum < minWeightSum || weightSum > maxWeightSum) {
		return nil, invalid("weights sum to %.1f%%, want %.0f-%.0f%%", weightSum, minWeightSum, maxWeightSum)
	}
	if hasWeight && req.TotalAmount <= 0 {
		req.TotalAmount = DefaultTotalAmount
	}
	req.Assets = assets

	plan := &Plan{Request: req, Assets: make([]Allocation, len(assets)), weighted: hasWeight}
	for i, a := range assets {
		alloc := Allocation{AssetPlan: a, ID: AssetID(i), Periods: 1}

		if a.Investment == DCA {
			if minDays := cadenceDays(a.Cadence); core.DaysBetween(req.Start, req.End) < minDays {
				return nil, invalid("%s: dca cadence %s is longer than the simulated range", a.Symbol, a.Cadence)
			}
			fit := schedule.Occurrences(req.Start, req.End, a.Cadence, schedule.AnchorFrom(req.Start))
			alloc.Periods = a.Periods
			if alloc.Periods == 0 {
				alloc.Periods = fit
			}
			if alloc.Periods > fit {
				return nil, invalid("%s: %d dca periods but only %d %s dates fall between %s and %s",
					a.Symbol, a.Periods, fit, a.Cadence, req.Start.Format(core.DateFormat), req.End.Format(core.DateFormat))
			}
		}

		if hasWeight {
			alloc.Total = a.Weight / weightSum * req.TotalAmount
		} else {
			alloc.Total = a.Amount
		}
		plan.Assets[i] = alloc
		plan.setPeriods(AssetID(i), alloc.Periods)
	}

	plan.reweigh()
	if plan.Committed <= 0 {
		return nil, invalid("total investment must be positive")
	}
	return plan, nil
}

// setPeriods changes the purchase count of asset id. Weight-based plans
// keep the asset's capital and spread it over n periods; amount-based
// plans keep the per-period amount.
func (p *Plan) setPeriods(id AssetID, n int) {
	a := &p.Assets[id]
	a.Periods = n
	if p.weighted {
		a.PeriodAmount = a.Total / float64(n)
		return
	}
	a.PeriodAmount = a.Amount
	a.Total = a.Amount * float64(n)
}

// reweigh recomputes committed capital and target weights from the
// allocations' totals.
func (p *Plan) reweigh() {
	p.Committed = 0
	for _, a := range p.Assets {
		p.Committed += a.Total
	}
	if p.Committed <= 0 {
		return
	}
	for i := range p.Assets {
		p.Assets[i].TargetWeight = p.Assets[i].Total / p.Committed
	}
}

// FitPeriods limits each DCA asset to the purchases its priced dates can
// reach. priced returns an asset's priced days in order; anchor is the
// run's monthly anchor. Derived counts follow the data, explicit counts are
// capped by it. It returns the symbols whose count changed.
func (p *Plan) FitPeriods(anchor schedule.Anchor, priced func(AssetID) []time.Time) []string {
	var changed []string
	for _, a := range p.Assets {
		if a.Investment != DCA {
			continue
		}
		n := reachablePurchases(a.Cadence, anchor, priced(a.ID))
		if n == 0 {
			continue
		}
		want := n
		if a.AssetPlan.Periods > 0 && a.AssetPlan.Periods < n {
			want = a.AssetPlan.Periods
		}
		if want != a.Periods {
			p.setPeriods(a.ID, want)
			changed = append(changed, a.Symbol)
		}
	}
	if len(changed) > 0 {
		p.reweigh()
	}
	return changed
}

// reachablePurchases counts the purchases ApplyScheduledPurchases makes
// over days: the first priced day, then every day the schedule fires on.
func reachablePurchases(c schedule.Cadence, anchor schedule.Anchor, days []time.Time) int {
	if len(days) == 0 {
		return 0
	}
	tr := schedule.NewTracker(c, anchor, days[0])
	tr.Skip(days[0])
	n := 1
	for _, d := range days[1:] {
		if tr.Fire(d) {
			n++
		}
	}
	return n
}

// cadenceDays approximates the length of one cadence interval.
func cadenceDays(c schedule.Cadence) int {
	switch {
	case c.IsNone():
		return 0
	case c.Unit == schedule.UnitWeek:
		return 7 * c.Interval
	default:
		return 30 * c.Interval
	}
}
