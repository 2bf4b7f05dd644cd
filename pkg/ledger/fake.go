package ledger

import (
	"context"
	"encoding/hex"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

// FakeWatcher is an in-memory source adapter for tests. Events pushed with
// Emit flow to the current WatchAddresses subscriber; Fail terminates the
// stream with the given error, after which a new WatchAddresses call starts a
// fresh stream.
type FakeWatcher struct {
	mu     sync.Mutex
	events chan bridge.DepositEvent
	errs   chan error
	hrp    string
	asset  string

	// Subscriptions counts WatchAddresses calls, so tests can assert on
	// re-subscribe behavior.
	Subscriptions int
}

// NewFakeWatcher returns a fake source adapter decoding with the given
// bech32 prefix and asset type.
func NewFakeWatcher(hrp, asset string) *FakeWatcher {
	return &FakeWatcher{hrp: hrp, asset: asset}
}

func (f *FakeWatcher) WatchAddresses(ctx context.Context, addresses []string) (<-chan bridge.DepositEvent, <-chan error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Subscriptions++
	f.events = make(chan bridge.DepositEvent, 64)
	f.errs = make(chan error, 1)
	return f.events, f.errs
}

// Emit delivers an already-decoded deposit to the subscriber.
func (f *FakeWatcher) Emit(d bridge.DepositEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.events != nil {
		f.events <- d
	}
}

// EmitRaw runs a wire event through the real decode path before delivery.
func (f *FakeWatcher) EmitRaw(ev TxEvent, watched []string) error {
	dec := newDecoder(f.hrp, f.asset, watched)
	deposits, err := dec.DepositsFromEvent(ev)
	if err != nil {
		return err
	}
	for _, d := range deposits {
		f.Emit(d)
	}
	return nil
}

// SubscriptionCount returns how many times WatchAddresses has been called.
func (f *FakeWatcher) SubscriptionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Subscriptions
}

// Fail terminates the current stream with err.
func (f *FakeWatcher) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs != nil {
		f.errs <- err
		close(f.events)
		close(f.errs)
		f.events = nil
		f.errs = nil
	}
}

func (f *FakeWatcher) Close() error { return nil }

// FakeSubmitter is an in-memory destination adapter for tests.
type FakeSubmitter struct {
	mu          sync.Mutex
	submissions [][]byte

	// SubmitFunc overrides the submit result; by default the fake echoes
	// SubmitHash.
	SubmitFunc func(txBytes []byte) (string, error)
	SubmitHash string
	Stages     []Stage
}

// NewFakeSubmitter returns a destination adapter that confirms immediately.
func NewFakeSubmitter() *FakeSubmitter {
	return &FakeSubmitter{Stages: []Stage{StageAcknowledged, StageConfirmed}}
}

func (f *FakeSubmitter) SubmitTx(ctx context.Context, txBytes []byte) (string, error) {
	f.mu.Lock()
	buf := make([]byte, len(txBytes))
	copy(buf, txBytes)
	f.submissions = append(f.submissions, buf)
	fn := f.SubmitFunc
	hash := f.SubmitHash
	f.mu.Unlock()

	if fn != nil {
		return fn(txBytes)
	}
	if hash != "" {
		return hash, nil
	}
	// Default behaves like the real ledger: hash of the submitted bytes.
	sum := blake2b.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

func (f *FakeSubmitter) WaitForTx(ctx context.Context, txHash string) (<-chan Stage, <-chan error) {
	stages := make(chan Stage, len(f.Stages))
	errs := make(chan error, 1)
	for _, s := range f.Stages {
		stages <- s
	}
	close(stages)
	close(errs)
	return stages, errs
}

// Submissions returns a copy of everything submitted so far.
func (f *FakeSubmitter) Submissions() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.submissions))
	copy(out, f.submissions)
	return out
}

func (f *FakeSubmitter) Close() error { return nil }
