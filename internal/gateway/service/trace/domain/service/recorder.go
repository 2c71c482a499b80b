// Package service implements the trace recorder: encrypt, queue,
// batch-persist. Recording must never block or fail a request.
package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/gateway/service/trace/domain/entity"
	"github.com/loomhq/loom/internal/gateway/service/trace/domain/repo"
	"github.com/loomhq/loom/pkg/cryptoutil"
	"github.com/loomhq/loom/pkg/logger"
)

// Event is one exchange handed to the recorder, payloads still in
// plaintext.
type Event struct {
	TenantID string
	AgentID  *string

	Model    string
	Provider string

	RequestBody  []byte
	ResponseBody []byte

	StatusCode int

	LatencyMs         int64
	TTFBMs            int64
	GatewayOverheadMs int64

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// RecorderOptions tunes the queue and the drainer.
type RecorderOptions struct {
	QueueSize     int
	FlushInterval time.Duration
	MaxBatch      int
}

func (o *RecorderOptions) complete() {
	if o.QueueSize <= 0 {
		o.QueueSize = 1024
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = 100
	}
}

// Recorder encrypts trace events and persists them in the background.
// With a nil cipher it degrades to a no-op sink: requests proceed, no
// trace is kept.
type Recorder struct {
	store  repo.TraceRepository
	cipher *cryptoutil.Cipher

	queue   chan *entity.Trace
	dropped atomic.Uint64

	flushInterval time.Duration
	maxBatch      int

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRecorder creates a Recorder and starts its drainer. cipher may be
// nil, which disables recording entirely.
func NewRecorder(store repo.TraceRepository, cipher *cryptoutil.Cipher, opts RecorderOptions) *Recorder {
	opts.complete()
	r := &Recorder{
		store:         store,
		cipher:        cipher,
		queue:         make(chan *entity.Trace, opts.QueueSize),
		flushInterval: opts.FlushInterval,
		maxBatch:      opts.MaxBatch,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
	if cipher == nil {
		logger.Warn("[Trace] no encryption master key configured; trace recording is DISABLED")
		close(r.done)
		return r
	}
	go r.drain()
	return r
}

// Record encrypts the event and enqueues it without blocking. When the
// queue is full the oldest entry is dropped to make room.
func (r *Recorder) Record(ev *Event) {
	if r.cipher == nil {
		return
	}
	row, err := r.seal(ev)
	if err != nil {
		r.dropped.Add(1)
		logger.Error("[Trace] encrypt trace for tenant %s: %v", ev.TenantID, err)
		return
	}

	for {
		select {
		case r.queue <- row:
			return
		default:
		}
		// Queue full: drop the oldest and retry.
		select {
		case <-r.queue:
			r.dropped.Add(1)
		default:
		}
	}
}

// Dropped returns the number of events lost to overflow or failure.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops the drainer and flushes what is queued, bounded by ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) seal(ev *Event) (*entity.Trace, error) {
	ad := []byte(ev.TenantID)
	reqCT, reqIV, err := r.cipher.Encrypt(ev.RequestBody, ad)
	if err != nil {
		return nil, err
	}
	respCT, respIV, err := r.cipher.Encrypt(ev.ResponseBody, ad)
	if err != nil {
		return nil, err
	}
	return &entity.Trace{
		ID:                 uuid.NewString(),
		TenantID:           ev.TenantID,
		AgentID:            ev.AgentID,
		Model:              ev.Model,
		Provider:           ev.Provider,
		RequestCiphertext:  reqCT,
		RequestIV:          reqIV,
		ResponseCiphertext: respCT,
		ResponseIV:         respIV,
		StatusCode:         ev.StatusCode,
		LatencyMs:          ev.LatencyMs,
		TTFBMs:             ev.TTFBMs,
		GatewayOverheadMs:  ev.GatewayOverheadMs,
		PromptTokens:       ev.PromptTokens,
		CompletionTokens:   ev.CompletionTokens,
		TotalTokens:        ev.TotalTokens,
		CreatedAt:          time.Now().UTC(),
	}, nil
}

func (r *Recorder) drain() {
	defer close(r.done)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.flush()
		case <-r.stop:
			// Final drain: keep flushing until the queue is empty.
			for r.flush() > 0 {
			}
			return
		}
	}
}

// flush writes up to one batch and returns how many rows it took off
// the queue. Failed batches are dropped and counted, never retried.
func (r *Recorder) flush() int {
	batch := make([]*entity.Trace, 0, r.maxBatch)
	for len(batch) < r.maxBatch {
		select {
		case row := <-r.queue:
			batch = append(batch, row)
		default:
			goto write
		}
	}
write:
	if len(batch) == 0 {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.InsertBatch(ctx, batch); err != nil {
		r.dropped.Add(uint64(len(batch)))
		logger.Error("[Trace] flush %d traces: %v", len(batch), err)
	}
	return len(batch)
}
