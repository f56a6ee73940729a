package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/synbench/internal/catalog"
)

// --- Mock types ---

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBackend) Kind() Kind {
	args := m.Called()
	return args.Get(0).(Kind)
}

func (m *MockBackend) Setup(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBackend) Load(ctx context.Context, model catalog.Handle) error {
	args := m.Called(ctx, model)
	return args.Error(0)
}

func (m *MockBackend) Run(ctx context.Context, req Request) (*Result, error) {
	args := m.Called(ctx, req)
	if res, ok := args.Get(0).(*Result); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBackend) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockRepeatRunner struct {
	MockBackend
}

func (m *MockRepeatRunner) RunRepeated(ctx context.Context, req Request, n int) (*Result, error) {
	args := m.Called(ctx, req, n)
	if res, ok := args.Get(0).(*Result); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

// --- Tests ---

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	mockBackend := new(MockBackend)
	mockBackend.On("Name").Return("test-backend")

	require.NoError(t, reg.Register(mockBackend))

	got, ok := reg.Get("test-backend")
	assert.True(t, ok)
	assert.Equal(t, mockBackend, got)

	// Ensure a missing backend returns false
	_, ok = reg.Get("missing")
	assert.False(t, ok)

	mockBackend.AssertExpectations(t)
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	b1 := new(MockBackend)
	b2 := new(MockBackend)
	b1.On("Name").Return("same")
	b2.On("Name").Return("same")

	require.NoError(t, reg.Register(b1))
	err := reg.Register(b2)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	got, _ := reg.Get("same")
	assert.Same(t, b1, got)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_KeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()

	names := []string{"wasmtime", "native", "tract"}
	for _, name := range names {
		b := new(MockBackend)
		b.On("Name").Return(name)
		require.NoError(t, reg.Register(b))
	}

	assert.Equal(t, names, reg.Names())

	list := reg.List()
	require.Len(t, list, 3)
	for i, b := range list {
		assert.Equal(t, names[i], b.Name())
	}
}

func TestRegistry_GetRepeatRunner(t *testing.T) {
	reg := NewRegistry()

	// Plain backend
	mockBackend := new(MockBackend)
	mockBackend.On("Name").Return("basic")
	require.NoError(t, reg.Register(mockBackend))

	rr, ok := reg.GetRepeatRunner("basic")
	assert.False(t, ok)
	assert.Nil(t, rr)

	// Repeating backend
	mockRepeat := new(MockRepeatRunner)
	mockRepeat.On("Name").Return("repeater")
	require.NoError(t, reg.Register(mockRepeat))

	rr, ok = reg.GetRepeatRunner("repeater")
	assert.True(t, ok)
	assert.Equal(t, mockRepeat, rr)

	_, ok = reg.GetRepeatRunner("missing")
	assert.False(t, ok)

	mockBackend.AssertExpectations(t)
	mockRepeat.AssertExpectations(t)
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	b1 := new(MockBackend)
	b2 := new(MockBackend)
	b1.On("Name").Return("b1")
	b2.On("Name").Return("b2")

	// Normal close
	b1.On("Close", ctx).Return(nil).Once()
	b2.On("Close", ctx).Return(nil).Once()

	require.NoError(t, reg.Register(b1))
	require.NoError(t, reg.Register(b2))

	err := reg.Close(ctx)
	assert.NoError(t, err)

	b1.AssertExpectations(t)
	b2.AssertExpectations(t)
}

func TestRegistry_CloseErrorPropagation(t *testing.T) {
	reg := NewRegistry()
	ctx := context.Background()

	b1 := new(MockBackend)
	b2 := new(MockBackend)

	b1.On("Name").Return("b1")
	b2.On("Name").Return("b2")

	closeErr := errors.New("close failed")
	b1.On("Close", ctx).Return(closeErr).Once()
	b2.On("Close", ctx).Return(nil).Once()

	require.NoError(t, reg.Register(b1))
	require.NoError(t, reg.Register(b2))

	err := reg.Close(ctx)
	assert.ErrorIs(t, err, closeErr)
	assert.Contains(t, err.Error(), "b1: close failed")

	b1.AssertExpectations(t)
	b2.AssertExpectations(t)
}
