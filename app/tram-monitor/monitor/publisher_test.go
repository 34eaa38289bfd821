package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/OpenTransitTools/tramcast/foundation/clock"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type publishedMessage struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	messages []publishedMessage
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, publishedMessage{subject: subject, data: data})
	return nil
}

func (f *fakePublisher) published() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMessage(nil), f.messages...)
}

func TestPublishOnce(t *testing.T) {
	is := is.New(t)
	serviceDate := testServiceDate(t)
	logWriter := makeTestLogWriter()
	metrics := NewMetrics()
	mockClock := clock.NewMockClock(serviceDate.Add(8*time.Hour + 2*time.Minute))
	engine := NewEngine(logWriter.log, makeStaticSource(t, testTrips(serviceDate)), nil, mockClock, metrics)
	natsConnection := &fakePublisher{}
	publisher := makeVehiclePublisher(logWriter.log, natsConnection, "vehicles", metrics)
	tracker := NewProgressTracker(time.Hour)

	count, err := publishOnce(context.Background(), engine, publisher, tracker)
	is.NoErr(err)
	is.Equal(count, 1)
	messages := natsConnection.published()
	is.Equal(len(messages), 1)
	is.Equal(messages[0].subject, "vehicles")

	var snapshot VehicleSnapshot
	is.NoErr(json.Unmarshal(messages[0].data, &snapshot))
	is.Equal(snapshot.Timestamp, mockClock.NowUnixMilli())
	is.Equal(tripIdsOf(snapshot.Vehicles), []string{"t1"})
	is.Equal(testutil.ToFloat64(metrics.PublishedSnapshots), 1.0)
	is.Equal(tracker.Len(), 1)

	natsConnection.err = errors.New("nats: connection closed")
	_, err = publishOnce(context.Background(), engine, publisher, tracker)
	is.True(errors.Is(err, natsConnection.err))
	is.Equal(testutil.ToFloat64(metrics.PublishedSnapshots), 1.0)
}

func TestRunPublishLoop(t *testing.T) {
	is := is.New(t)
	serviceDate := testServiceDate(t)
	logWriter := makeTestLogWriter()
	mockClock := clock.NewMockClock(serviceDate.Add(8*time.Hour + 2*time.Minute))
	engine := NewEngine(logWriter.log, makeStaticSource(t, testTrips(serviceDate)), nil, mockClock, nil)
	natsConnection := &fakePublisher{}
	shutdownSignal := make(chan os.Signal, 1)

	done := make(chan error, 1)
	go func() {
		done <- RunPublishLoop(logWriter.log, engine, natsConnection, "vehicles", 60, shutdownSignal)
	}()

	//the first cycle runs immediately
	deadline := time.Now().Add(5 * time.Second)
	for len(natsConnection.published()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	is.Equal(len(natsConnection.published()), 1)

	shutdownSignal <- os.Interrupt
	select {
	case err := <-done:
		is.NoErr(err)
	case <-time.After(5 * time.Second):
		t.Fatal("RunPublishLoop did not stop on shutdown signal")
	}
	is.True(logWriter.contains("published 1 vehicles on vehicles"))
	is.True(logWriter.contains("Exiting on shutdown signal"))
}

func TestFmtDuration(t *testing.T) {
	is := is.New(t)
	is.Equal(fmtDuration(time.Hour+2*time.Minute+3*time.Second+450*time.Millisecond), "01:02.3450")
	is.Equal(fmtDuration(25*time.Millisecond), "00:00.25")
}
