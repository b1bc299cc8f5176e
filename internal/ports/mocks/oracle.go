package mocks

import (
	"context"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/stretchr/testify/mock"
)

type MockOracle struct {
	mock.Mock
}

var _ ports.Oracle = (*MockOracle)(nil)

func NewMockOracle(t testingT) *MockOracle {
	m := &MockOracle{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

type MockOracleExpecter struct {
	mock *mock.Mock
}

func (m *MockOracle) EXPECT() *MockOracleExpecter {
	return &MockOracleExpecter{mock: &m.Mock}
}

func (m *MockOracle) Start(ctx context.Context, mode domain.MatchMode) (ports.StartedGame, error) {
	args := m.Called(ctx, mode)

	return args.Get(0).(ports.StartedGame), args.Error(1)
}

func (e *MockOracleExpecter) Start(ctx interface{}, mode interface{}) *mock.Call {
	return e.mock.On("Start", ctx, mode)
}

func (m *MockOracle) Submit(ctx context.Context, gameID, idiom string) (ports.Verdict, error) {
	args := m.Called(ctx, gameID, idiom)

	return args.Get(0).(ports.Verdict), args.Error(1)
}

func (e *MockOracleExpecter) Submit(ctx interface{}, gameID interface{}, idiom interface{}) *mock.Call {
	return e.mock.On("Submit", ctx, gameID, idiom)
}
