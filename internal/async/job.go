package async

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

// DocumentProcessor analyzes one document. Errors are retried by the queue.
type DocumentProcessor interface {
	Process(ctx context.Context, documentID uuid.UUID, jobType constants.JobType) (any, error)
}

// Options tune one job. Queue-level options set the defaults Submit starts from.
type Options struct {
	MaxConcurrent   int
	Timeout         time.Duration // whole job
	DocumentTimeout time.Duration // single attempt; 0 means bounded only by Timeout
	RetryAttempts   int
	RetryDelay      time.Duration // multiplied by the attempt number
}

func DefaultOptions() Options {
	return Options{
		MaxConcurrent: 5,
		Timeout:       5 * time.Minute,
		RetryAttempts: 2,
		RetryDelay:    2 * time.Second,
	}
}

type Option func(*Options)

func WithMaxConcurrent(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxConcurrent = n
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.Timeout = d
		}
	}
}

func WithDocumentTimeout(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.DocumentTimeout = d
		}
	}
}

func WithRetryAttempts(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.RetryAttempts = n
		}
	}
}

func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.RetryDelay = d
		}
	}
}

// DocumentResult is the outcome of one document within a job.
type DocumentResult struct {
	DocumentID  uuid.UUID     `json:"document_id"`
	Success     bool          `json:"success"`
	Payload     any           `json:"payload,omitempty"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// DocumentError is recorded for every document that did not succeed.
type DocumentError struct {
	DocumentID uuid.UUID `json:"document_id"`
	Message    string    `json:"message"`
	Attempts   int       `json:"attempts"`
	At         time.Time `json:"at"`
}

// Job is a snapshot of a processing job. The queue owns the live copy.
type Job struct {
	ID                 uuid.UUID           `json:"id"`
	DocumentIDs        []uuid.UUID         `json:"document_ids"`
	Type               constants.JobType   `json:"type"`
	Status             constants.JobStatus `json:"status"`
	Progress           float64             `json:"progress"` // 0..100
	Results            []DocumentResult    `json:"results"`
	Errors             []DocumentError     `json:"errors"`
	Total              int                 `json:"total"`
	Processed          int                 `json:"processed"`
	Failed             int                 `json:"failed"`
	EstimatedRemaining *time.Duration      `json:"estimated_remaining,omitempty"`
	Options            Options             `json:"options"`
	CreatedAt          time.Time           `json:"created_at"`
	StartedAt          *time.Time          `json:"started_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
}

func (j *Job) clone() *Job {
	c := *j
	c.DocumentIDs = slices.Clone(j.DocumentIDs)
	c.Results = slices.Clone(j.Results)
	c.Errors = slices.Clone(j.Errors)
	if j.EstimatedRemaining != nil {
		d := *j.EstimatedRemaining
		c.EstimatedRemaining = &d
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}
