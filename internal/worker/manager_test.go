package worker

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

type fakeWorker struct {
	name     string
	startErr error
	started  bool
	stopped  bool
	order    *[]string
}

func (f *fakeWorker) Start(ctx context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeWorker) Stop() {
	f.stopped = true
	if f.order != nil {
		*f.order = append(*f.order, f.name)
	}
}

func (f *fakeWorker) Name() string {
	return f.name
}

func TestManager_StartAll(t *testing.T) {
	m := NewManager(zap.NewNop())
	a := &fakeWorker{name: "a"}
	b := &fakeWorker{name: "b"}
	m.Register(a)
	m.Register(b)

	if got := m.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if !a.started || !b.started {
		t.Error("StartAll() did not start all workers")
	}
}

func TestManager_StartAllStopsOnFirstError(t *testing.T) {
	m := NewManager(zap.NewNop())
	failErr := errors.New("boom")
	a := &fakeWorker{name: "a", startErr: failErr}
	b := &fakeWorker{name: "b"}
	m.Register(a)
	m.Register(b)

	if err := m.StartAll(context.Background()); !errors.Is(err, failErr) {
		t.Fatalf("StartAll() error = %v, want %v", err, failErr)
	}
	if b.started {
		t.Error("StartAll() started workers after a failure")
	}
}

func TestManager_StopAllReverseOrder(t *testing.T) {
	m := NewManager(zap.NewNop())
	var order []string
	a := &fakeWorker{name: "a", order: &order}
	b := &fakeWorker{name: "b", order: &order}
	m.Register(a)
	m.Register(b)

	m.StopAll()

	if !a.stopped || !b.stopped {
		t.Fatal("StopAll() did not stop all workers")
	}
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("StopAll() order = %v, want [b a]", order)
	}
}
