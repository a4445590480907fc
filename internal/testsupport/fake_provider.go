package testsupport

import (
	"context"
	"sync"
	"time"

	"murmur/internal/tts"
)

// FakeProvider records synthesis requests and returns deterministic audio.
type FakeProvider struct {
	mu          sync.Mutex
	requests    []tts.Request
	inFlight    int
	maxInFlight int

	// Delay is applied to every call, honoring cancellation.
	Delay time.Duration
	// Fail, when set, is consulted with the 1-based call number.
	Fail func(call int, req tts.Request) error
}

// NewFakeProvider constructs a provider that always succeeds.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{}
}

// Name implements tts.Provider.
func (f *FakeProvider) Name() string { return "fake" }

// HealthCheck implements tts.Provider.
func (f *FakeProvider) HealthCheck(context.Context) error { return nil }

// Synthesize implements tts.Provider.
func (f *FakeProvider) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	call := len(f.requests)
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	fail := f.Fail
	delay := f.Delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		if err := fail(call, req); err != nil {
			return nil, err
		}
	}
	return []byte("RIFF fake audio: " + req.Text), nil
}

// Requests returns a snapshot of received requests in call order.
func (f *FakeProvider) Requests() []tts.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tts.Request(nil), f.requests...)
}

// MaxInFlight reports the highest number of concurrent calls observed.
func (f *FakeProvider) MaxInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight
}
