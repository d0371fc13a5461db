package essmock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/wattledger/wattledger/pkg/ess"
	"github.com/wattledger/wattledger/pkg/normalize"
	"github.com/wattledger/wattledger/pkg/types"
)

// MockSystem is a testify mock of ess.System. Location is not mocked; it
// returns Loc, or UTC if Loc is nil.
type MockSystem struct {
	mock.Mock
	Loc *time.Location
}

var _ ess.System = (*MockSystem)(nil)

func (m *MockSystem) Report(ctx context.Context, date types.Date, dim ess.Dimension, variables []string) (normalize.Shape, error) {
	args := m.Called(ctx, date, dim, variables)
	if s, ok := args.Get(0).(normalize.Shape); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSystem) History(ctx context.Context, date types.Date, variables []string, end time.Time) (normalize.Shape, error) {
	args := m.Called(ctx, date, variables, end)
	if s, ok := args.Get(0).(normalize.Shape); ok {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSystem) MonthEnergy(ctx context.Context, month types.YearMonth) ([]ess.DailyTotal, error) {
	args := m.Called(ctx, month)
	if len(args) > 0 {
		totals, _ := args.Get(0).([]ess.DailyTotal)
		return totals, args.Error(1)
	}
	return nil, nil
}

func (m *MockSystem) Realtime(ctx context.Context, variables []string) (types.Realtime, error) {
	args := m.Called(ctx, variables)
	return args.Get(0).(types.Realtime), args.Error(1)
}

func (m *MockSystem) Devices(ctx context.Context) ([]types.Device, error) {
	args := m.Called(ctx)
	devices, _ := args.Get(0).([]types.Device)
	return devices, args.Error(1)
}

func (m *MockSystem) Location() *time.Location {
	if m.Loc == nil {
		return time.UTC
	}
	return m.Loc
}
