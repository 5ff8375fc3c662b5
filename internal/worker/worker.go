// Package worker implements the per-alias serial Worker & QueueBridge of
// spec.md §4.7: a single long-lived goroutine per alias that consumes an
// MPSC channel of Request and replies exactly once per Request over a
// buffered channel, giving every alias single-writer ordering. Grounded on
// the teacher's long-lived-goroutine-with-done-channel shape
// (internal/collectioncache/cache.go:Start, internal/coordinator/
// coordinator.go:Start), generalized from "poll on a ticker" to "range over
// a request channel."
package worker

import (
	"context"
	"sync"

	lop "github.com/samber/lo/parallel"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/logging"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/pool"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// Op discriminates which Backend method a Request dispatches to.
type Op int

const (
	OpCreate Op = iota
	OpFindByID
	OpFind
	OpUpdate
	OpUpdateByID
	OpDelete
	OpDeleteByID
	OpCount
	OpExists
	OpCreateTable
	OpCreateIndex
	OpTableExists
	OpDropTable
	OpServerVersion
)

// Request is the internal Request of spec.md §3, carrying everything one
// Backend call needs plus a one-shot reply channel. The zero value of most
// payload fields is "not applicable to this Op" — callers populate only
// the fields relevant to Op.
type Request struct {
	Op         Op
	Collection string
	Record     adapter.Record
	Conditions []adapter.Condition
	Patch      adapter.Patch
	ID         valuedomain.Value
	Options    adapter.FindOptions
	Meta       model.ModelMeta
	Index      model.IndexDef

	ctx   context.Context
	reply chan Response
}

// Response is the bijective reply to a Request (spec.md §3, §4.7). Exactly
// one of the value fields is meaningful, selected by the originating
// Request's Op; Err is set on failure and the value fields are zero.
type Response struct {
	ID      valuedomain.Value
	Record  adapter.Record
	Found   bool
	Records []adapter.Record
	Count   int64
	Exists  bool
	Version string
	Err     error
}

// Worker is the per-alias single-consumer dispatcher of spec.md §4.7,
// parameterized over the pool's backend-specific connection type C.
type Worker[C any] struct {
	alias   string
	backend adapter.Backend
	pool    *pool.Pool[C]
	sink    logging.EventSink

	reqs chan *Request

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New constructs a Worker and starts its consumer goroutine. queueCapacity
// is the soft cap of spec.md §5 "Backpressure": Submit fails fast with
// QueueFull rather than blocking once the channel is full.
func New[C any](alias string, backend adapter.Backend, p *pool.Pool[C], sink logging.EventSink, queueCapacity int) *Worker[C] {
	if sink == nil {
		sink = logging.NopSink{}
	}
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	w := &Worker[C]{
		alias:   alias,
		backend: backend,
		pool:    p,
		sink:    sink,
		reqs:    make(chan *Request, queueCapacity),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Submit enqueues req and blocks until the worker replies or ctx is
// cancelled. A full queue fails immediately with QueueFull; a request sent
// after Stop fails immediately too, matching spec.md §4.7's shutdown
// contract ("the channel closes to new sends").
func (w *Worker[C]) Submit(ctx context.Context, req *Request) Response {
	req.ctx = ctx
	req.reply = make(chan Response, 1)

	w.mu.RLock()
	if w.closed {
		w.mu.RUnlock()
		return Response{Err: errs.New(errs.KindQueueFull, "worker for alias "+w.alias+" is shutting down")}
	}
	select {
	case w.reqs <- req:
		w.mu.RUnlock()
	default:
		w.mu.RUnlock()
		return Response{Err: errs.New(errs.KindQueueFull, "request queue full for alias "+w.alias)}
	}

	select {
	case resp := <-req.reply:
		return resp
	case <-ctx.Done():
		// Dropping interest in the reply per spec.md §4.7's cancellation
		// contract — the worker may still be mid-flight on this request;
		// it detects the same ctx.Done() before starting expensive work.
		return Response{Err: errs.Wrap(errs.KindCancelled, "request cancelled", ctx.Err())}
	}
}

// SubmitBatch dispatches independent requests concurrently via
// samber/lo/parallel, matching the teacher's pkg/client/client.go fan-out
// of per-collection initialization work. Used for model-manager batch
// helpers (e.g. deleting many IDs) that decompose into one Request per
// item rather than a single multi-row Backend call.
func (w *Worker[C]) SubmitBatch(ctx context.Context, reqs []*Request) []Response {
	return lop.Map(reqs, func(req *Request, _ int) Response {
		return w.Submit(ctx, req)
	})
}

// Stop closes the request channel to new sends and waits for the worker to
// drain pending requests before returning, per spec.md §4.7's shutdown
// contract. It does not close the pool; callers close the pool separately
// once Stop returns (see internal/alias's remove_database teardown order).
func (w *Worker[C]) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.reqs)
	w.mu.Unlock()

	w.wg.Wait()
}

func (w *Worker[C]) run() {
	defer w.wg.Done()
	for req := range w.reqs {
		select {
		case <-req.ctx.Done():
			w.sink.Debug("skipping request with already-cancelled context", "alias", w.alias, "op", req.Op)
			continue
		default:
		}
		resp := w.execute(req)
		select {
		case req.reply <- resp:
		default:
			w.sink.Warn("dropped response: reply channel not ready", "alias", w.alias, "op", req.Op)
		}
	}
}

func (w *Worker[C]) execute(req *Request) Response {
	conn, err := w.pool.Acquire(req.ctx)
	if err != nil {
		return Response{Err: err}
	}

	resp := w.dispatch(req, conn.Value)

	if resp.Err != nil && errs.KindOf(resp.Err) == errs.KindTransportError {
		w.sink.Warn("discarding connection after transport error", "alias", w.alias, "collection", req.Collection)
		w.pool.Discard(conn)
	} else {
		w.pool.Release(conn)
	}
	return resp
}

func (w *Worker[C]) dispatch(req *Request, conn any) Response {
	ctx := req.ctx
	b := w.backend

	switch req.Op {
	case OpCreate:
		id, err := b.Create(ctx, conn, req.Collection, req.Record, req.Meta)
		return Response{ID: id, Err: err}
	case OpFindByID:
		rec, found, err := b.FindByID(ctx, conn, req.Collection, req.ID, req.Meta)
		return Response{Record: rec, Found: found, Err: err}
	case OpFind:
		recs, err := b.Find(ctx, conn, req.Collection, req.Conditions, req.Options, req.Meta)
		return Response{Records: recs, Err: err}
	case OpUpdate:
		n, err := b.Update(ctx, conn, req.Collection, req.Conditions, req.Patch, req.Meta)
		return Response{Count: n, Err: err}
	case OpUpdateByID:
		ok, err := b.UpdateByID(ctx, conn, req.Collection, req.ID, req.Patch, req.Meta)
		return Response{Exists: ok, Err: err}
	case OpDelete:
		n, err := b.Delete(ctx, conn, req.Collection, req.Conditions)
		return Response{Count: n, Err: err}
	case OpDeleteByID:
		ok, err := b.DeleteByID(ctx, conn, req.Collection, req.ID)
		return Response{Exists: ok, Err: err}
	case OpCount:
		n, err := b.Count(ctx, conn, req.Collection, req.Conditions)
		return Response{Count: n, Err: err}
	case OpExists:
		ok, err := b.Exists(ctx, conn, req.Collection, req.Conditions)
		return Response{Exists: ok, Err: err}
	case OpCreateTable:
		err := b.CreateTable(ctx, conn, req.Meta)
		return Response{Err: err}
	case OpCreateIndex:
		err := b.CreateIndex(ctx, conn, req.Collection, req.Index)
		return Response{Err: err}
	case OpTableExists:
		ok, err := b.TableExists(ctx, conn, req.Collection)
		return Response{Exists: ok, Err: err}
	case OpDropTable:
		err := b.DropTable(ctx, conn, req.Collection)
		return Response{Err: err}
	case OpServerVersion:
		version, err := b.ServerVersion(ctx, conn)
		return Response{Version: version, Err: err}
	default:
		return Response{Err: errs.New(errs.KindInternal, "unknown worker op")}
	}
}
