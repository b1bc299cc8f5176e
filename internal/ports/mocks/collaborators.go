package mocks

import (
	"context"

	"github.com/bnema/idiom-relay/internal/domain"
	"github.com/bnema/idiom-relay/internal/ports"
	"github.com/stretchr/testify/mock"
)

type testingT interface {
	mock.TestingT
	Cleanup(func())
}

type MockNameResolver struct {
	mock.Mock
}

var _ ports.NameResolver = (*MockNameResolver)(nil)

func NewMockNameResolver(t testingT) *MockNameResolver {
	m := &MockNameResolver{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockNameResolver) DisplayName(ctx context.Context, player domain.PlayerID) (string, error) {
	args := m.Called(ctx, player)

	return args.String(0), args.Error(1)
}

type MockPointsLedger struct {
	mock.Mock
}

var _ ports.PointsLedger = (*MockPointsLedger)(nil)

func NewMockPointsLedger(t testingT) *MockPointsLedger {
	m := &MockPointsLedger{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockPointsLedger) Award(ctx context.Context, player domain.PlayerID, amount int) error {
	args := m.Called(ctx, player, amount)

	return args.Error(0)
}

type MockSessionRepository struct {
	mock.Mock
}

var _ ports.SessionRepository = (*MockSessionRepository)(nil)

func NewMockSessionRepository(t testingT) *MockSessionRepository {
	m := &MockSessionRepository{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

func (m *MockSessionRepository) LoadAll(ctx context.Context) ([]*domain.Session, error) {
	args := m.Called(ctx)

	sessions, _ := args.Get(0).([]*domain.Session)

	return sessions, args.Error(1)
}

func (m *MockSessionRepository) SaveAll(ctx context.Context, sessions []*domain.Session) error {
	args := m.Called(ctx, sessions)

	return args.Error(0)
}
