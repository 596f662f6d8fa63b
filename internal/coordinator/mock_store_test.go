package coordinator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"squonk-radio/internal/queue"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Register(ctx context.Context, groupKey string) error {
	args := m.Called(ctx, groupKey)
	return args.Error(0)
}

func (m *MockStore) IsRegistered(ctx context.Context, groupKey string) (bool, error) {
	args := m.Called(ctx, groupKey)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) Load(ctx context.Context, groupKey string) (queue.Playlist, error) {
	args := m.Called(ctx, groupKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(queue.Playlist), args.Error(1)
}

func (m *MockStore) Save(ctx context.Context, groupKey string, p queue.Playlist) error {
	args := m.Called(ctx, groupKey, p)
	return args.Error(0)
}

func (m *MockStore) Groups(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}
