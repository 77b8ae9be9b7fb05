package async

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
	EventTimedOut  EventType = "timed_out"
)

// Event is published on every document completion and once when the job turns terminal.
type Event struct {
	Type               EventType
	JobID              uuid.UUID
	Status             constants.JobStatus
	Total              int
	Processed          int
	Failed             int
	Progress           float64
	EstimatedRemaining *time.Duration
	DocumentID         *uuid.UUID
	At                 time.Time
}

// EventSink receives job events. Publish is called while the job is locked,
// so implementations must not call back into the queue for the same job.
// Errors and panics are logged by the queue and never change job state.
type EventSink interface {
	Publish(ctx context.Context, ev Event) error
}

type NopSink struct{}

func (NopSink) Publish(context.Context, Event) error { return nil }

// LogSink writes events as structured log lines.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, ev Event) error {
	attrs := []any{
		"job_id", ev.JobID,
		"status", ev.Status,
		"processed", ev.Processed,
		"failed", ev.Failed,
		"total", ev.Total,
		"progress", ev.Progress,
	}
	if ev.EstimatedRemaining != nil {
		attrs = append(attrs, "eta_ms", ev.EstimatedRemaining.Milliseconds())
	}
	if ev.DocumentID != nil {
		attrs = append(attrs, "document_id", *ev.DocumentID)
	}
	s.logger.InfoContext(ctx, "queue.event."+string(ev.Type), attrs...)
	return nil
}

// StreamSink writes newline-delimited protobuf JSON, one google.protobuf.Struct per event.
type StreamSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewStreamSink(w io.Writer) *StreamSink {
	return &StreamSink{w: w}
}

func (s *StreamSink) Publish(_ context.Context, ev Event) error {
	b, err := EncodeEvent(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("stream sink write: %w", err)
	}
	return nil
}

// EncodeEvent renders an event as compact protojson.
func EncodeEvent(ev Event) ([]byte, error) {
	fields := map[string]any{
		"type":      string(ev.Type),
		"jobId":     ev.JobID.String(),
		"status":    string(ev.Status),
		"total":     ev.Total,
		"processed": ev.Processed,
		"failed":    ev.Failed,
		"progress":  ev.Progress,
		"at":        ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.EstimatedRemaining != nil {
		fields["estimatedTimeRemainingMs"] = ev.EstimatedRemaining.Milliseconds()
	}
	if ev.DocumentID != nil {
		fields["documentId"] = ev.DocumentID.String()
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return protojson.MarshalOptions{}.Marshal(st)
}

// MultiSink fans an event out to every sink; one failing sink does not stop the others.
type MultiSink struct {
	sinks  []EventSink
	logger *slog.Logger
}

func NewMultiSink(logger *slog.Logger, sinks ...EventSink) *MultiSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiSink{sinks: sinks, logger: logger}
}

func (m *MultiSink) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for i, s := range m.sinks {
		if err := publishSafe(ctx, s, ev); err != nil {
			m.logger.Warn("queue.sink.failed", "sink", i, "job_id", ev.JobID, "event", ev.Type, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func publishSafe(ctx context.Context, s EventSink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.Publish(ctx, ev)
}
