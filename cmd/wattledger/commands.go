package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/wattledger/wattledger/pkg/ess"
	"github.com/wattledger/wattledger/pkg/ledger"
	"github.com/wattledger/wattledger/pkg/log"
	"github.com/wattledger/wattledger/pkg/types"
)

type inverter interface {
	Realtime(ctx context.Context, variables []string) (types.Realtime, error)
	Devices(ctx context.Context) ([]types.Device, error)
	Ping(ctx context.Context) (ess.Separator, error)
}

type priceTable interface {
	Table() []types.PriceMonthly
}

type app struct {
	svc    *ledger.Service
	system inverter
	prices priceTable
}

type command struct {
	usage    string
	min, max int
	run      func(ctx context.Context, a *app, args []string) (any, error)
}

var commands = map[string]command{
	"day": {
		usage: "DATE",
		min:   1, max: 1,
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			date, err := types.ParseDate(args[0])
			if err != nil {
				return nil, err
			}
			day, err := a.svc.FetchDayEnergy(ctx, date)
			if err != nil {
				// the zero day is still printed with failed set
				log.Ctx(ctx).WarnContext(ctx, "no energy data for date", "error", err)
			}
			return day, nil
		},
	},
	"range": {
		usage: "FROM TO [generation|export]",
		min:   2, max: 3,
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			from, to, err := parseRange(args)
			if err != nil {
				return nil, err
			}
			q, err := types.ParseQuantity(optional(args, 2))
			if err != nil {
				return nil, err
			}
			return a.svc.FetchRangeEnergy(ctx, from, to, q)
		},
	},
	"month": {
		usage: "YYYY-MM [generation|export]",
		min:   1, max: 2,
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			month, err := types.ParseYearMonth(args[0])
			if err != nil {
				return nil, err
			}
			q, err := types.ParseQuantity(optional(args, 1))
			if err != nil {
				return nil, err
			}
			return a.svc.FetchMonthEnergy(ctx, month, q)
		},
	},
	"year": {
		usage: "YYYY [generation|export]",
		min:   1, max: 2,
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, fmt.Errorf("invalid year %q: %w", args[0], err)
			}
			q, err := types.ParseQuantity(optional(args, 1))
			if err != nil {
				return nil, err
			}
			return a.svc.FetchYearEnergy(ctx, year, q)
		},
	},
	"revenue-day": {
		usage: "DATE [rce|rcem]",
		min:   1, max: 2,
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			date, err := types.ParseDate(args[0])
			if err != nil {
				return nil, err
			}
			mode, err := types.ParsePriceMode(optional(args, 1))
			if err != nil {
				return nil, err
			}
			return a.svc.ComputeDayRevenue(ctx, date, mode)
		},
	},
	"revenue-range": {
		usage: "FROM TO [rce|rcem] [PRICE-MONTH]",
		min:   2, max: 4,
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			from, to, err := parseRange(args)
			if err != nil {
				return nil, err
			}
			mode, err := types.ParsePriceMode(optional(args, 2))
			if err != nil {
				return nil, err
			}
			var priceMonth *types.YearMonth
			if s := optional(args, 3); s != "" {
				if mode != types.PriceModeMonthly {
					return nil, errors.New("a price month only applies to rcem")
				}
				ym, err := types.ParseYearMonth(s)
				if err != nil {
					return nil, err
				}
				priceMonth = &ym
			}
			return a.svc.ComputeRangeRevenue(ctx, from, to, mode, priceMonth)
		},
	},
	"prices": {
		usage: "DATE",
		min:   1, max: 1,
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			date, err := types.ParseDate(args[0])
			if err != nil {
				return nil, err
			}
			return a.svc.HourlyPrices(ctx, date)
		},
	},
	"rcem": {
		usage: "[YYYY-MM]",
		min:   0, max: 1,
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			if len(args) == 0 {
				return a.prices.Table(), nil
			}
			month, err := types.ParseYearMonth(args[0])
			if err != nil {
				return nil, err
			}
			return a.svc.MonthlyPrice(ctx, month)
		},
	},
	"rce-avg": {
		usage: "YYYY-MM",
		min:   1, max: 1,
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			month, err := types.ParseYearMonth(args[0])
			if err != nil {
				return nil, err
			}
			return a.svc.MonthPriceAverage(ctx, month)
		},
	},
	"realtime": {
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			return a.system.Realtime(ctx, nil)
		},
	},
	"devices": {
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			return a.system.Devices(ctx)
		},
	},
	"ping": {
		run: func(ctx context.Context, a *app, args []string) (any, error) {
			sep, err := a.system.Ping(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]string{"separator": strconv.Quote(string(sep))}, nil
		},
	},
}

func usage() string {
	names := lo.Keys(commands)
	slices.Sort(names)
	var b strings.Builder
	b.WriteString("usage: wattledger [flags] COMMAND [ARGS]\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %s %s\n", name, commands[name].usage)
	}
	return b.String()
}

func (a *app) run(ctx context.Context, args []string) (any, error) {
	if len(args) == 0 {
		return nil, errors.New(usage())
	}
	name := args[0]
	cmd, ok := commands[name]
	if !ok {
		return nil, fmt.Errorf("unknown command %q\n%s", name, usage())
	}
	args = args[1:]
	if len(args) < cmd.min || len(args) > cmd.max {
		return nil, fmt.Errorf("usage: wattledger %s %s", name, cmd.usage)
	}
	return cmd.run(ctx, a, args)
}

func parseRange(args []string) (types.Date, types.Date, error) {
	from, err := types.ParseDate(args[0])
	if err != nil {
		return types.Date{}, types.Date{}, err
	}
	to, err := types.ParseDate(args[1])
	if err != nil {
		return types.Date{}, types.Date{}, err
	}
	return from, to, nil
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}
