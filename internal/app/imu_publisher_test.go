package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/serial_imu/internal/config"
	"github.com/relabs-tech/serial_imu/internal/imu"
	"github.com/relabs-tech/serial_imu/internal/poller"
	"github.com/relabs-tech/serial_imu/internal/serialport"
)

type countingPort struct {
	*serialport.Simulator
	closes atomic.Int32
}

func (c *countingPort) Close() error {
	c.closes.Add(1)
	return c.Simulator.Close()
}

type recordingSink struct {
	mu   sync.Mutex
	imus []imu.Reading
	mags []imu.MagneticReading
}

func (s *recordingSink) PublishIMU(r imu.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imus = append(s.imus, r)
}

func (s *recordingSink) PublishMag(m imu.MagneticReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mags = append(s.mags, m)
}

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.imus), len(s.mags)
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MQTTBroker = "tcp://127.0.0.1:1"
	cfg.IMUStatsInterval = 0
	return cfg
}

func stubOpen(t *testing.T, fn func(serialport.Options) (serialport.Port, error)) {
	t.Helper()
	orig := serialport.Open
	serialport.Open = fn
	t.Cleanup(func() { serialport.Open = orig })
}

func stubSink(t *testing.T, sink poller.Sink, released *atomic.Int32) *atomic.Int32 {
	t.Helper()
	var calls atomic.Int32
	orig := connectSink
	connectSink = func(context.Context, *config.Config, *slog.Logger) (poller.Sink, func(), error) {
		calls.Add(1)
		return sink, func() { released.Add(1) }, nil
	}
	t.Cleanup(func() { connectSink = orig })
	return &calls
}

func TestRunIMUPublisher_OpenFailureIsFatal(t *testing.T) {
	openErr := errors.New("no such device")
	stubOpen(t, func(serialport.Options) (serialport.Port, error) { return nil, openErr })

	sink := &recordingSink{}
	var released atomic.Int32
	calls := stubSink(t, sink, &released)

	err := RunIMUPublisher(context.Background(), testConfig(), slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.ErrorIs(t, err, openErr)

	assert.Zero(t, calls.Load(), "sink must not be set up when the port fails")
	n, m := sink.counts()
	assert.Zero(t, n)
	assert.Zero(t, m)
}

func TestRunIMUPublisher_PublishesAndClosesOnce(t *testing.T) {
	port := &countingPort{Simulator: serialport.NewSimulator()}
	var gotOpts serialport.Options
	stubOpen(t, func(o serialport.Options) (serialport.Port, error) {
		gotOpts = o
		return port, nil
	})

	sink := &recordingSink{}
	var released atomic.Int32
	stubSink(t, sink, &released)

	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunIMUPublisher(ctx, cfg, slog.New(slog.DiscardHandler)) }()

	require.Eventually(t, func() bool {
		n, _ := sink.counts()
		return n >= 5
	}, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("RunIMUPublisher did not return after cancel")
	}

	assert.Equal(t, "/dev/ttyACM1", gotOpts.PortName)
	assert.Equal(t, 38400, gotOpts.BaudRate)
	assert.Equal(t, int32(1), port.closes.Load())
	assert.Equal(t, int32(1), released.Load())

	n, m := sink.counts()
	assert.Equal(t, n, m)
}

func TestRunIMUPublisher_SinkFailureStillClosesPort(t *testing.T) {
	port := &countingPort{Simulator: serialport.NewSimulator()}
	stubOpen(t, func(serialport.Options) (serialport.Port, error) { return port, nil })

	orig := connectSink
	connectSink = func(context.Context, *config.Config, *slog.Logger) (poller.Sink, func(), error) {
		return nil, nil, errors.New("broker unreachable")
	}
	t.Cleanup(func() { connectSink = orig })

	err := RunIMUPublisher(context.Background(), testConfig(), slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Equal(t, int32(1), port.closes.Load())
}

func TestOpenPort_Simulated(t *testing.T) {
	stubOpen(t, func(serialport.Options) (serialport.Port, error) {
		t.Fatal("serial device must not be opened in simulate mode")
		return nil, nil
	})

	cfg := testConfig()
	cfg.IMUSimulate = true
	port, err := openPort(cfg)
	require.NoError(t, err)
	assert.IsType(t, &serialport.Simulator{}, port)
	require.NoError(t, port.Close())
}

func TestRunIMUPublisher_RequiresBroker(t *testing.T) {
	stubOpen(t, func(serialport.Options) (serialport.Port, error) {
		t.Fatal("port must not be opened without a broker")
		return nil, nil
	})

	cfg := testConfig()
	cfg.MQTTBroker = ""
	err := RunIMUPublisher(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MQTT_BROKER")
}
