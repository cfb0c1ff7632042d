package main

import (
	"context"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tony-ross/actor-messaging/config"
	"github.com/tony-ross/actor-messaging/models"
	"github.com/tony-ross/actor-messaging/publisher"
	"net"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestRunLoopReturnsOnSignal(t *testing.T) {
	// Given
	signals := make(chan os.Signal, 1)
	signals <- syscall.SIGTERM

	// When
	returned := runLoopInBackground(signals, make(chan publisher.Error), make(chan error))

	// Then
	assertReturnsWithin(t, returned, time.Second)
}

func TestRunLoopReturnsOnServerError(t *testing.T) {
	// Given
	serverErrChan := make(chan error, 1)
	serverErrChan <- errors.New("address already in use")

	// When
	returned := runLoopInBackground(make(chan os.Signal), make(chan publisher.Error), serverErrChan)

	// Then
	assertReturnsWithin(t, returned, time.Second)
}

func TestWaitForStartup(t *testing.T) {
	t.Run("Server error during start up", testWaitForStartup(errors.New("listen failed"), true))
	t.Run("Server starts cleanly", testWaitForStartup(nil, false))
}

func testWaitForStartup(serverErr error, expectError bool) func(t *testing.T) {
	return func(t *testing.T) {
		// Given
		cfg := *config.TestConfig
		cfg.ServerStartUpTimeSeconds = 0
		serverErrChan := make(chan error, 1)
		if serverErr != nil {
			serverErrChan <- serverErr
			cfg.ServerStartUpTimeSeconds = 5
		}

		// When
		err := waitForStartup(context.Background(), &cfg, serverErrChan)

		// Then
		if expectError {
			assert.Equal(t, serverErr, err)
		} else {
			assert.NoError(t, err)
		}
	}
}

func TestShutdownWithNothingStarted(t *testing.T) {
	// Given
	ctx, cancel := context.WithCancel(context.Background())

	// When
	shutdown(ctx, cancel, config.TestConfig, &Application{})

	// Then
	assert.Error(t, ctx.Err(), "Shutdown should cancel the root context")
}

func TestShutdownStopsServerAndClosesPublisher(t *testing.T) {
	// Given
	ctx, cancel := context.WithCancel(context.Background())
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if !assert.NoError(t, err) {
		cancel()
		return
	}
	server := &http.Server{Handler: http.NotFoundHandler()}
	serverErrChan := make(chan error, 1)
	go serve(server, listener, serverErrChan)

	mockPublisher := new(MockPublisher)
	mockPublisher.On("Close").Return(nil).Once()

	// When
	shutdown(ctx, cancel, config.TestConfig, &Application{Server: server, Publisher: mockPublisher})

	// Then
	mockPublisher.AssertExpectations(t)
	_, err = http.Get("http://" + listener.Addr().String())
	assert.Error(t, err, "Server should no longer accept connections")
	assert.Empty(t, serverErrChan, "A closed server should not report an error")
}

// Helpers
func runLoopInBackground(signals chan os.Signal, publisherErrChan chan publisher.Error, serverErrChan chan error) chan struct{} {
	returned := make(chan struct{})
	go func() {
		RunLoop(context.Background(), config.TestConfig, signals, publisherErrChan, serverErrChan)
		close(returned)
	}()
	return returned
}

func assertReturnsWithin(t *testing.T, returned chan struct{}, timeout time.Duration) {
	select {
	case <-returned:
	case <-time.After(timeout):
		assert.Fail(t, "RunLoop did not return within the timeout")
	}
}

// Mocks
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Send(ctx context.Context, message models.OutboundMessage) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockPublisher) Topic() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}
