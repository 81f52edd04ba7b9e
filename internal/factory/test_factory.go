package factory

import (
	"time"

	"github.com/chatmate/chatmate/internal/dependencies/mocks"
	"github.com/chatmate/chatmate/internal/services/history"
	"github.com/chatmate/chatmate/internal/services/identity"
	"github.com/chatmate/chatmate/internal/storage/memory"
	"github.com/chatmate/chatmate/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock *mocks.MockClock
}

// NewTestApp creates an App configured for testing with a mocked clock
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC))

	app := newWithDependencies(
		store, nil, history.DefaultCapacity,
		mockClock, identity.DefaultConfig(), testutil.NopLogger(),
	)

	return &TestApp{
		App:       app,
		MockClock: mockClock,
	}
}
