// internal/storage/archive/results.go
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/portsim/internal/core"
	"github.com/newthinker/portsim/internal/portfolio"
	"github.com/newthinker/portsim/internal/report"
)

const runsPrefix = "runs"

// Result file names inside runs/<id>/.
const (
	ResultFile  = "result.json"
	SummaryFile = "summary.txt"
	ChartFile   = "chart.png"
)

// Results stores simulation results in a Storage backend under
// runs/<id>/.
type Results struct {
	store  Storage
	logger *zap.Logger
}

// NewResults creates a result archive on top of store.
func NewResults(store Storage, logger *zap.Logger) *Results {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Results{store: store, logger: logger}
}

func runPath(id, file string) string {
	return path.Join(runsPrefix, id, file)
}

// SaveResult writes the JSON result, text summary and equity chart of a
// run. A chart that cannot be rendered is skipped.
func (r *Results) SaveResult(ctx context.Context, id string, res *portfolio.Result) error {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("invalid run id %q", id))
	}

	data, err := report.JSON(res)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	if err := r.store.Write(ctx, runPath(id, ResultFile), data); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	var summary bytes.Buffer
	if err := report.WriteSummary(&summary, res); err != nil {
		return fmt.Errorf("rendering summary: %w", err)
	}
	if err := r.store.Write(ctx, runPath(id, SummaryFile), summary.Bytes()); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	chart, err := report.RenderChart(res, "Run "+id)
	if err != nil {
		r.logger.Warn("skipping chart", zap.String("run", id), zap.Error(err))
		return nil
	}
	if err := r.store.Write(ctx, runPath(id, ChartFile), chart); err != nil {
		return fmt.Errorf("writing chart: %w", err)
	}

	r.logger.Debug("result archived", zap.String("run", id))
	return nil
}

// LoadResult reads back a stored result.
func (r *Results) LoadResult(ctx context.Context, id string) (*portfolio.Result, error) {
	data, err := r.store.Read(ctx, runPath(id, ResultFile))
	if err != nil {
		return nil, err
	}
	var res portfolio.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decoding result %s: %w", id, err)
	}
	return &res, nil
}

// Runs lists the archived run IDs, sorted.
func (r *Results) Runs(ctx context.Context) ([]string, error) {
	paths, err := r.store.List(ctx, runsPrefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var ids []string
	for _, p := range paths {
		rest, ok := strings.CutPrefix(p, runsPrefix+"/")
		if !ok {
			continue
		}
		id, _, _ := strings.Cut(rest, "/")
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
