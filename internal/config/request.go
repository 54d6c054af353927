package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/portfolio"
	"github.com/newthinker/portsim/internal/schedule"
)

// RequestFile is the on-disk and over-the-wire form of a simulation
// request. Dates are YYYY-MM-DD and cadences use their text form.
// Fields left empty fall back to the simulation section of Config.
type RequestFile struct {
	Name              string      `mapstructure:"name" json:"name,omitempty"`
	Start             string      `mapstructure:"start" json:"start"`
	End               string      `mapstructure:"end" json:"end"`
	Rebalance         string      `mapstructure:"rebalance" json:"rebalance,omitempty"`
	Commission        *float64    `mapstructure:"commission" json:"commission,omitempty"`
	ReportingCurrency string      `mapstructure:"reporting_currency" json:"reporting_currency,omitempty"`
	TotalAmount       float64     `mapstructure:"total_amount" json:"total_amount,omitempty"`
	Assets            []AssetFile `mapstructure:"assets" json:"assets"`
}

type AssetFile struct {
	Symbol     string  `mapstructure:"symbol" json:"symbol"`
	Amount     float64 `mapstructure:"amount" json:"amount,omitempty"`
	Weight     float64 `mapstructure:"weight" json:"weight,omitempty"`
	Investment string  `mapstructure:"investment" json:"investment,omitempty"`
	Cadence    string  `mapstructure:"cadence" json:"cadence,omitempty"`
	Periods    int     `mapstructure:"periods" json:"periods,omitempty"`
	Kind       string  `mapstructure:"kind" json:"kind,omitempty"`
}

// requestExts are the file types LoadRequestDir picks up.
var requestExts = map[string]bool{".yaml": true, ".yml": true, ".json": true, ".toml": true}

// LoadRequest reads one request file. The name defaults to the file's
// base name without extension.
func LoadRequest(path string) (RequestFile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return RequestFile{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("reading request %s: %w", path, err))
	}

	var f RequestFile
	if err := v.Unmarshal(&f); err != nil {
		return RequestFile{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("decoding request %s: %w", path, err))
	}
	if f.Name == "" {
		f.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return f, nil
}

// LoadRequestDir reads every request file in dir, ordered by file name.
func LoadRequestDir(dir string) ([]RequestFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("reading %s: %w", dir, err))
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !requestExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("no request files in %s", dir))
	}

	files := make([]RequestFile, 0, len(names))
	for _, name := range names {
		f, err := LoadRequest(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// Request converts the file into an engine request, filling unset fields
// from defaults. Semantic checks are left to portfolio.NewPlan.
func (f RequestFile) Request(defaults SimulationConfig) (portfolio.Request, error) {
	start, err := parseDate("start", f.Start)
	if err != nil {
		return portfolio.Request{}, err
	}
	end, err := parseDate("end", f.End)
	if err != nil {
		return portfolio.Request{}, err
	}

	rebalance := f.Rebalance
	if rebalance == "" {
		rebalance = defaults.RebalanceCadence
	}
	cadence, err := schedule.ParseCadence(rebalance)
	if err != nil {
		return portfolio.Request{}, err
	}

	req := portfolio.Request{
		Start:             start,
		End:               end,
		RebalanceCadence:  cadence,
		CommissionRate:    defaults.CommissionRate,
		ReportingCurrency: f.ReportingCurrency,
		TotalAmount:       f.TotalAmount,
	}
	if f.Commission != nil {
		req.CommissionRate = *f.Commission
	}
	if req.ReportingCurrency == "" {
		req.ReportingCurrency = defaults.ReportingCurrency
	}

	for _, a := range f.Assets {
		plan := portfolio.AssetPlan{
			Symbol:     a.Symbol,
			Amount:     a.Amount,
			Weight:     a.Weight,
			Investment: portfolio.Investment(strings.ToLower(a.Investment)),
			Periods:    a.Periods,
			Kind:       portfolio.Kind(strings.ToLower(a.Kind)),
		}
		if a.Cadence != "" {
			c, err := schedule.ParseCadence(a.Cadence)
			if err != nil {
				return portfolio.Request{}, fmt.Errorf("%s: %w", a.Symbol, err)
			}
			plan.Cadence = c
		}
		req.Assets = append(req.Assets, plan)
	}
	return req, nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, core.WrapError(core.ErrConfigMissing, fmt.Errorf("%s date required", field))
	}
	t, err := time.Parse(core.DateFormat, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("%s: %w", field, err))
	}
	return t, nil
}
