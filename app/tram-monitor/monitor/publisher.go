package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/OpenTransitTools/tramcast/business/data/gtfs"
)

// messagePublisher sends data on a subject, implemented by *nats.Conn
type messagePublisher interface {
	Publish(subject string, data []byte) error
}

// VehicleSnapshot is the message published for each polling cycle
type VehicleSnapshot struct {
	Timestamp int64          `json:"timestamp"`
	Vehicles  []gtfs.Vehicle `json:"vehicles"`
}

// vehiclePublisher sends vehicle snapshots over NATS
type vehiclePublisher struct {
	log            *log.Logger
	natsConnection messagePublisher
	subject        string
	metrics        *Metrics
}

//makeVehiclePublisher creates vehiclePublisher
func makeVehiclePublisher(log *log.Logger,
	natsConnection messagePublisher,
	subject string,
	metrics *Metrics) *vehiclePublisher {
	return &vehiclePublisher{
		log:            log,
		natsConnection: natsConnection,
		subject:        subject,
		metrics:        metrics,
	}
}

func (v *vehiclePublisher) publish(snapshot *VehicleSnapshot) error {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal VehicleSnapshot in vehiclePublisher.publish, error:%w", err)
	}
	if err = v.natsConnection.Publish(v.subject, jsonData); err != nil {
		return fmt.Errorf("failed to send VehicleSnapshot in vehiclePublisher.publish, error:%w", err)
	}
	v.metrics.snapshotPublished()
	return nil
}

// publishOnce queries the active vehicles and publishes them
func publishOnce(ctx context.Context,
	engine *Engine,
	publisher *vehiclePublisher,
	tracker *ProgressTracker) (int, error) {
	opts := QueryOptions{ActiveOnly: true, Tracker: tracker, Time: engine.clock.NowUnixMilli()}
	vehicles, err := engine.Query(ctx, opts)
	if err != nil {
		return 0, err
	}
	err = publisher.publish(&VehicleSnapshot{Timestamp: opts.Time, Vehicles: vehicles})
	return len(vehicles), err
}

//RunPublishLoop publishes the active vehicles on subject every publishEverySeconds until shutdownSignal.
//Progress of each trip never decreases during the loop.
func RunPublishLoop(log *log.Logger,
	engine *Engine,
	natsConnection messagePublisher,
	subject string,
	publishEverySeconds int,
	shutdownSignal chan os.Signal) error {

	loopDuration := time.Duration(publishEverySeconds) * time.Second
	publisher := makeVehiclePublisher(log, natsConnection, subject, engine.metrics)
	tracker := NewProgressTracker(time.Hour)

	sleepChan := make(chan bool)
	sleep := time.Duration(0) //sleep for zero seconds the first time

	for {
		go func() {
			time.Sleep(sleep)
			sleepChan <- true
		}()

		select {
		case <-shutdownSignal:
			log.Printf("Exiting on shutdown signal")
			return nil
		case <-sleepChan:
		}

		sleep = loopDuration
		start := time.Now()

		count, err := publishOnce(context.Background(), engine, publisher, tracker)
		if err != nil {
			log.Printf("error publishing vehicles. error:%v\n", err)
			continue
		}

		workTook := time.Since(start)
		log.Printf("published %d vehicles on %s in %s\n", count, subject, fmtDuration(workTook))

		// if the work took longer than loopDuration don't sleep at all on the next loop
		if workTook >= loopDuration {
			sleep = time.Duration(0)
		} else {
			sleep = loopDuration - workTook
		}
	}
}

//fmtDuration returns a string presentation of time.Duration for logging
func fmtDuration(d time.Duration) string {
	d = d.Round(time.Millisecond)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	mill := d / time.Millisecond
	return fmt.Sprintf("%02d:%02d.%d", h, m, mill)
}
