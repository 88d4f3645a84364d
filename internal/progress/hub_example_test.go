package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type leadCountingSink struct {
	total int
}

func (s *leadCountingSink) Consume(_ context.Context, batch []Event) error {
	s.total += len(batch)
	return nil
}

func (s *leadCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting a job-start event and flushing via Close.
func ExampleHub_Emit() {
	sink := &leadCountingSink{}
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, sink)

	hub.Emit(Event{
		JobID: UUIDToBytes(uuid.MustParse("0198f6a2-0000-7000-8000-000000000001")),
		TS:    time.Unix(0, 0),
		Stage: StageJobStart,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", sink.total)
	// Output:
	// events forwarded: 1
}

// ExampleSink implements a custom Sink that totals bytes fetched from
// candidate company sites.
func ExampleSink() {
	type bytesSink struct {
		bytes int64
	}
	var s bytesSink
	capture := sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			s.bytes += evt.Bytes
		}
		return nil
	})
	hub := NewHub(Config{
		BufferSize:     2,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, capture)

	hub.Emit(Event{
		JobID:       UUIDToBytes(uuid.MustParse("0198f6a2-0000-7000-8000-000000000002")),
		TS:          time.Unix(0, 0),
		Stage:       StageFetchDone,
		Site:        "acmerobotics.com",
		StatusClass: Status2xx,
		Bytes:       2048,
	})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("bytes scraped: %d\n", s.bytes)
	// Output:
	// bytes scraped: 2048
}

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}
