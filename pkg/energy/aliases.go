package energy

import (
	"strings"

	"github.com/samber/lo"

	"github.com/wattledger/wattledger/pkg/normalize"
	"github.com/wattledger/wattledger/pkg/types"
)

// variable names the report endpoint has used for each quantity, most
// common first
var reportAliases = map[types.Quantity][]string{
	types.QuantityGeneration: {"generation", "yield", "eDay", "dayEnergy", "pvGeneration", "gen", "production"},
	types.QuantityExport:     {"feedin", "gridExportEnergy", "export", "gridOutEnergy", "sell", "toGrid", "eOut"},
}

// power variables come first since history samples are instantaneous
var historyPower = map[types.Quantity][]string{
	types.QuantityGeneration: {"generationPower", "pvPower"},
	types.QuantityExport:     {"feedinPower", "gridExportPower"},
}

// Aliases returns the report variable names for q.
func Aliases(q types.Quantity) []string {
	return reportAliases[q]
}

// HistoryVariables returns the history variable names for q.
func HistoryVariables(q types.Quantity) []string {
	return append(append([]string{}, historyPower[q]...), reportAliases[q]...)
}

// isForeign reports whether name is a known variable of a quantity other
// than q.
func isForeign(q types.Quantity, name string) bool {
	for other, names := range reportAliases {
		if other == q {
			continue
		}
		all := append(append([]string{}, names...), historyPower[other]...)
		if lo.ContainsBy(all, func(a string) bool { return strings.EqualFold(a, name) }) {
			return true
		}
	}
	return false
}

// orderByAlias returns the series matching names in alias order, followed by
// any series with an unknown name in payload order. Series belonging to
// another quantity are dropped.
func orderByAlias(q types.Quantity, series []normalize.RawSeries, names []string) []normalize.RawSeries {
	used := make([]bool, len(series))
	var out []normalize.RawSeries
	for _, name := range names {
		for i, rs := range series {
			if !used[i] && strings.EqualFold(rs.Variable, name) {
				used[i] = true
				out = append(out, rs)
			}
		}
	}
	for i, rs := range series {
		if used[i] || isForeign(q, rs.Variable) || lo.ContainsBy(names, func(a string) bool { return strings.EqualFold(a, rs.Variable) }) {
			continue
		}
		out = append(out, rs)
	}
	return out
}
