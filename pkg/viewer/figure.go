package viewer

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/oarkflow/clusterviz/pkg/table"
)

var ErrUnknownColumn = errors.New("unknown label column")

// transitionMillis bounds both the enter and the update animation so a
// column swap is a short cross-fade.
const transitionMillis = 100

// Figure is an echarts option object, ready to be marshaled to JSON and
// handed to echarts.setOption.
type Figure map[string]any

// BuildFigure scatters x0 against x1 with one series per distinct value of
// column.
func BuildFigure(t *table.Table, column string) (Figure, error) {
	values, ok := t.Column(column)
	if !ok || !isLabelColumn(t, column) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	groups := map[string][]opts.ScatterData{}
	for i, row := range t.Rows() {
		v := values[i]
		groups[v] = append(groups[v], opts.ScatterData{
			Name:  fmt.Sprintf("y=%d %s=%s", row.Y, column, v),
			Value: []interface{}{row.X0, row.X1},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: column}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "5%"}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:      opts.Bool(true),
			Trigger:   "item",
			Formatter: "{a}<br/>{b}",
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "x0", Type: "value"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "x1", Type: "value"}),
	)
	for _, v := range sortedKeys(groups) {
		scatter.AddSeries(v, groups[v])
	}
	scatter.Validate()

	fig := Figure(scatter.JSON())
	fig["animationDuration"] = transitionMillis
	fig["animationDurationUpdate"] = transitionMillis
	return fig, nil
}

func isLabelColumn(t *table.Table, column string) bool {
	for _, c := range t.LabelColumns() {
		if c == column {
			return true
		}
	}
	return false
}

// sortedKeys orders label values numerically, falling back to string
// order when either side is not an integer.
func sortedKeys(groups map[string][]opts.ScatterData) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return keys[i] < keys[j]
	})
	return keys
}
