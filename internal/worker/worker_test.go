package worker

import (
	"context"
	"testing"
	"time"

	"github.com/quickdb/quickdb/internal/adapter"
	"github.com/quickdb/quickdb/internal/errs"
	"github.com/quickdb/quickdb/internal/model"
	"github.com/quickdb/quickdb/internal/pool"
	"github.com/quickdb/quickdb/internal/valuedomain"
)

// fakeBackend is a minimal adapter.Backend stand-in exercising the worker's
// dispatch table without a real driver.
type fakeBackend struct {
	createErr error
}

func (f *fakeBackend) Kind() string { return "fake" }

func (f *fakeBackend) Create(ctx context.Context, conn any, collection string, record adapter.Record, meta model.ModelMeta) (valuedomain.Value, error) {
	if f.createErr != nil {
		return valuedomain.Value{}, f.createErr
	}
	return valuedomain.NewInt(1), nil
}
func (f *fakeBackend) FindByID(ctx context.Context, conn any, collection string, id valuedomain.Value, meta model.ModelMeta) (adapter.Record, bool, error) {
	return adapter.Record{"id": id}, true, nil
}
func (f *fakeBackend) Find(ctx context.Context, conn any, collection string, conditions []adapter.Condition, options adapter.FindOptions, meta model.ModelMeta) ([]adapter.Record, error) {
	return []adapter.Record{{"id": valuedomain.NewInt(1)}}, nil
}
func (f *fakeBackend) Update(ctx context.Context, conn any, collection string, conditions []adapter.Condition, patch adapter.Patch, meta model.ModelMeta) (int64, error) {
	return 1, nil
}
func (f *fakeBackend) UpdateByID(ctx context.Context, conn any, collection string, id valuedomain.Value, patch adapter.Patch, meta model.ModelMeta) (bool, error) {
	return true, nil
}
func (f *fakeBackend) Delete(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (int64, error) {
	return 1, nil
}
func (f *fakeBackend) DeleteByID(ctx context.Context, conn any, collection string, id valuedomain.Value) (bool, error) {
	return true, nil
}
func (f *fakeBackend) Count(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (int64, error) {
	return 3, nil
}
func (f *fakeBackend) Exists(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (bool, error) {
	return true, nil
}
func (f *fakeBackend) CreateTable(ctx context.Context, conn any, meta model.ModelMeta) error { return nil }
func (f *fakeBackend) CreateIndex(ctx context.Context, conn any, collection string, index model.IndexDef) error {
	return nil
}
func (f *fakeBackend) TableExists(ctx context.Context, conn any, collection string) (bool, error) {
	return true, nil
}
func (f *fakeBackend) DropTable(ctx context.Context, conn any, collection string) error { return nil }
func (f *fakeBackend) ServerVersion(ctx context.Context, conn any) (string, error)      { return "1.0", nil }

var _ adapter.Backend = (*fakeBackend)(nil)

func newTestWorker(t *testing.T, backend adapter.Backend) *Worker[string] {
	t.Helper()
	p, err := pool.New(context.Background(), "test", pool.Config{MinConns: 1, MaxConns: 2, AcquireTimeoutSecs: 1, MaxRetries: 0},
		func(ctx context.Context) (string, error) { return "conn", nil },
		func(ctx context.Context, conn string) error { return nil },
		func(conn string) error { return nil },
		nil,
	)
	if err != nil {
		t.Fatalf("pool.New: %v", err)
	}
	w := New("test", backend, p, nil, 4)
	t.Cleanup(func() {
		w.Stop()
		p.Close()
	})
	return w
}

func TestSubmitCreateDispatchesToBackend(t *testing.T) {
	w := newTestWorker(t, &fakeBackend{})
	resp := w.Submit(context.Background(), &Request{Op: OpCreate, Collection: "widgets", Record: adapter.Record{"name": valuedomain.NewString("x")}})
	if resp.Err != nil {
		t.Fatalf("unexpected error: %v", resp.Err)
	}
	if n, _ := resp.ID.Int(); n != 1 {
		t.Fatalf("expected id 1, got %v", resp.ID)
	}
}

func TestSubmitFindByIDDispatchesToBackend(t *testing.T) {
	w := newTestWorker(t, &fakeBackend{})
	resp := w.Submit(context.Background(), &Request{Op: OpFindByID, Collection: "widgets", ID: valuedomain.NewInt(7)})
	if resp.Err != nil || !resp.Found {
		t.Fatalf("expected found record, got %+v", resp)
	}
}

func TestSubmitPropagatesBackendError(t *testing.T) {
	w := newTestWorker(t, &fakeBackend{createErr: errs.New(errs.KindConstraintViolation, "dup")})
	resp := w.Submit(context.Background(), &Request{Op: OpCreate, Collection: "widgets", Record: adapter.Record{}})
	if resp.Err == nil || errs.KindOf(resp.Err) != errs.KindConstraintViolation {
		t.Fatalf("expected ConstraintViolation, got %v", resp.Err)
	}
}

func TestSubmitAfterStopFailsWithQueueFull(t *testing.T) {
	w := newTestWorker(t, &fakeBackend{})
	w.Stop()
	resp := w.Submit(context.Background(), &Request{Op: OpCount, Collection: "widgets"})
	if errs.KindOf(resp.Err) != errs.KindQueueFull {
		t.Fatalf("expected QueueFull after stop, got %v", resp.Err)
	}
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	w := newTestWorker(t, &fakeBackend{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := w.Submit(ctx, &Request{Op: OpCount, Collection: "widgets"})
	if errs.KindOf(resp.Err) != errs.KindCancelled {
		t.Fatalf("expected Cancelled, got %v", resp.Err)
	}
}

func TestSubmitBatchRunsRequestsConcurrently(t *testing.T) {
	w := newTestWorker(t, &fakeBackend{})
	reqs := []*Request{
		{Op: OpCount, Collection: "a"},
		{Op: OpCount, Collection: "b"},
		{Op: OpCount, Collection: "c"},
	}
	responses := w.SubmitBatch(context.Background(), reqs)
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(responses))
	}
	for _, resp := range responses {
		if resp.Err != nil || resp.Count != 3 {
			t.Fatalf("unexpected response: %+v", resp)
		}
	}
}

func TestQueueFullWhenSoftCapExceeded(t *testing.T) {
	// A worker whose backend blocks on the first request holds it outside
	// the queue; the second request fills the 1-capacity queue, so the
	// third Submit is rejected.
	blocker := make(chan struct{})
	backend := &blockingBackend{unblock: blocker}
	w := newTestWorker(t, backend)
	// Replace with a 1-capacity worker manually since newTestWorker uses 4.
	w2 := New("test2", backend, w.pool, nil, 1)
	defer func() {
		close(blocker)
		w2.Stop()
	}()

	done := make(chan Response, 2)
	go func() { done <- w2.Submit(context.Background(), &Request{Op: OpCount, Collection: "x"}) }()
	time.Sleep(20 * time.Millisecond) // let the first request start executing
	go func() { done <- w2.Submit(context.Background(), &Request{Op: OpCount, Collection: "y"}) }()
	time.Sleep(20 * time.Millisecond) // let the second request fill the queue

	resp := w2.Submit(context.Background(), &Request{Op: OpCount, Collection: "z"})
	if errs.KindOf(resp.Err) != errs.KindQueueFull {
		t.Fatalf("expected QueueFull, got %v", resp.Err)
	}
}

type blockingBackend struct {
	fakeBackend
	unblock chan struct{}
}

func (b *blockingBackend) Count(ctx context.Context, conn any, collection string, conditions []adapter.Condition) (int64, error) {
	<-b.unblock
	return 3, nil
}
