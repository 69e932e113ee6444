package decision

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"intrabot/internal/gateway/venue"
	"intrabot/internal/session"
	"intrabot/internal/strategy"
	"intrabot/internal/trader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu        sync.Mutex
	entries   []string
	exits     []string
	flattened []string
	flatAll   int
	cancelAll int
	entryErr  error
	onEntry   func(instrument string)
}

func (f *fakeExecutor) SubmitEntry(_ context.Context, instrument string, side trader.Side, ref float64) (venue.BracketOrder, error) {
	if f.onEntry != nil {
		f.onEntry(instrument)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, instrument+":"+string(side))
	return venue.BracketOrder{}, f.entryErr
}

func (f *fakeExecutor) SubmitExit(_ context.Context, instrument string) (venue.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exits = append(f.exits, instrument)
	return venue.Order{}, nil
}

func (f *fakeExecutor) Flatten(_ context.Context, instrument string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flattened = append(f.flattened, instrument)
	return nil
}

func (f *fakeExecutor) FlattenAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flatAll++
	return nil
}

func (f *fakeExecutor) CancelAll(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelAll++
	return nil
}

func (f *fakeExecutor) snapshot() (entries, exits, flattened []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.entries...), append([]string(nil), f.exits...), append([]string(nil), f.flattened...)
}

type fakePositions struct {
	mu     sync.Mutex
	states map[string]trader.PositionState
}

func (p *fakePositions) State(instrument string) trader.PositionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.states[instrument]; ok {
		return st
	}
	return trader.PositionState{Instrument: instrument, Phase: trader.PhaseFlat}
}

func (p *fakePositions) set(st trader.PositionState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.states == nil {
		p.states = make(map[string]trader.PositionState)
	}
	p.states[st.Instrument] = st
}

func longEntry(instrument string) strategy.Signal {
	return strategy.NewSignal(instrument, strategy.KindLongEntry, 100, time.Now())
}

func runCoordinator(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestOffer_LatchHeldDropsSecondSignal(t *testing.T) {
	c := NewCoordinator(&fakeExecutor{}, &fakePositions{}, Options{QueueSize: 4})

	require.NoError(t, c.Offer(longEntry("AAPL")))
	assert.True(t, c.Latched("aapl"))
	depth := c.Depth()

	err := c.Offer(longEntry("AAPL"))
	assert.ErrorIs(t, err, ErrLatchHeld)
	assert.Equal(t, depth, c.Depth())

	require.NoError(t, c.Offer(longEntry("MSFT")))
	assert.Equal(t, depth+1, c.Depth())
}

func TestOffer_RejectsPendingInstrument(t *testing.T) {
	pos := &fakePositions{}
	pos.set(trader.PositionState{Instrument: "AAPL", Phase: trader.PhasePendingEntry})
	c := NewCoordinator(&fakeExecutor{}, pos, Options{})

	err := c.Offer(longEntry("AAPL"))
	assert.ErrorIs(t, err, ErrPendingState)
	assert.False(t, c.Latched("AAPL"))
	assert.Zero(t, c.Depth())
}

func TestOffer_QueueFullReleasesLatch(t *testing.T) {
	c := NewCoordinator(&fakeExecutor{}, &fakePositions{}, Options{QueueSize: 1})
	require.NoError(t, c.Offer(longEntry("AAPL")))

	err := c.Offer(longEntry("MSFT"))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, c.Latched("MSFT"))
	assert.Equal(t, 1, c.Depth())
}

func TestOffer_MutualExclusionUnderConcurrency(t *testing.T) {
	c := NewCoordinator(&fakeExecutor{}, &fakePositions{}, Options{QueueSize: 128})

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Offer(longEntry("AAPL")) == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
	assert.Equal(t, 1, c.Depth())
}

func TestRun_ActsAndReleasesLatch(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewCoordinator(exec, &fakePositions{}, Options{})
	runCoordinator(t, c)

	require.NoError(t, c.Offer(longEntry("AAPL")))
	require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)
	entries, _, _ := exec.snapshot()
	assert.Equal(t, []string{"AAPL:long"}, entries)

	require.NoError(t, c.Offer(longEntry("AAPL")))
}

func TestRun_ReleasesLatchOnFailureAndPanic(t *testing.T) {
	exec := &fakeExecutor{entryErr: errors.New("gateway unavailable")}
	c := NewCoordinator(exec, &fakePositions{}, Options{})
	runCoordinator(t, c)

	require.NoError(t, c.Offer(longEntry("AAPL")))
	require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)

	exec.onEntry = func(string) { panic("boom") }
	require.NoError(t, c.Offer(longEntry("AAPL")))
	require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)
}

func TestRun_LatchHeldWhileActing(t *testing.T) {
	release := make(chan struct{})
	exec := &fakeExecutor{}
	exec.onEntry = func(string) { <-release }
	c := NewCoordinator(exec, &fakePositions{}, Options{})
	runCoordinator(t, c)

	require.NoError(t, c.Offer(longEntry("AAPL")))
	require.Eventually(t, func() bool { return c.Depth() == 0 }, time.Second, 5*time.Millisecond)
	assert.True(t, c.Latched("AAPL"))
	assert.ErrorIs(t, c.Offer(longEntry("AAPL")), ErrLatchHeld)
	close(release)
	require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)
}

func TestRun_ExitOnlyWhileHoldingSameSide(t *testing.T) {
	exec := &fakeExecutor{}
	pos := &fakePositions{}
	pos.set(trader.PositionState{Instrument: "AAPL", Phase: trader.PhaseLong, Side: trader.SideLong})
	c := NewCoordinator(exec, pos, Options{})
	runCoordinator(t, c)

	require.NoError(t, c.Offer(strategy.NewSignal("AAPL", strategy.KindShortExit, 100, time.Now())))
	require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Offer(strategy.NewSignal("AAPL", strategy.KindLongExit, 100, time.Now())))
	require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)

	_, exits, _ := exec.snapshot()
	assert.Equal(t, []string{"AAPL"}, exits)
}

func newYork(t *testing.T, hh, mm int) time.Time {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return time.Date(2026, 10, 19, hh, mm, 0, 0, loc)
}

func TestGate_CutoffConvertsEntryToFlatten(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewCoordinator(exec, &fakePositions{}, Options{Calendar: session.DefaultCalendar()})
	now := newYork(t, 15, 50)
	c.nowFn = func() time.Time { return now }
	runCoordinator(t, c)

	require.NoError(t, c.Offer(longEntry("AAPL")))
	require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)
	entries, _, flattened := exec.snapshot()
	assert.Empty(t, entries)
	assert.Equal(t, []string{"AAPL"}, flattened)
}

func TestGate_OutsideRegularHours(t *testing.T) {
	cases := []struct {
		name     string
		allow    bool
		wantSent int
	}{
		{name: "skipped", allow: false, wantSent: 0},
		{name: "allowed", allow: true, wantSent: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			c := NewCoordinator(exec, &fakePositions{}, Options{Calendar: session.DefaultCalendar(), AllowOutsideRTH: tc.allow})
			now := newYork(t, 8, 0)
			c.nowFn = func() time.Time { return now }
			runCoordinator(t, c)

			require.NoError(t, c.Offer(longEntry("AAPL")))
			require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)
			entries, _, _ := exec.snapshot()
			assert.Len(t, entries, tc.wantSent)
		})
	}
}

func TestGate_WaitsForWarmup(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewCoordinator(exec, &fakePositions{}, Options{Calendar: session.DefaultCalendar()})
	var mu sync.Mutex
	now := newYork(t, 9, 34)
	c.nowFn = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	var waited time.Duration
	c.sleepFn = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		waited = d
		now = now.Add(d)
		return nil
	}
	runCoordinator(t, c)

	require.NoError(t, c.Offer(longEntry("AAPL")))
	require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 6*time.Minute, waited)
	mu.Unlock()
	entries, _, _ := exec.snapshot()
	assert.Equal(t, []string{"AAPL:long"}, entries)
}

func TestClose_DrainsQueueAndCancelsOrders(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewCoordinator(exec, &fakePositions{}, Options{})
	for _, inst := range []string{"AAPL", "MSFT", "SPY"} {
		require.NoError(t, c.Offer(longEntry(inst)))
	}
	require.Equal(t, 3, c.Depth())

	require.NoError(t, c.Close(context.Background()))
	assert.Zero(t, c.Depth())
	assert.Empty(t, c.LatchedInstruments())
	assert.Equal(t, 1, exec.cancelAll)
	entries, _, _ := exec.snapshot()
	assert.Empty(t, entries)

	assert.ErrorIs(t, c.Offer(longEntry("AAPL")), ErrClosed)
	assert.ErrorIs(t, c.Flatten(context.Background(), "AAPL"), ErrClosed)
}

func TestClose_StopsRunningConsumer(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewCoordinator(exec, &fakePositions{}, Options{PollTimeout: 10 * time.Millisecond})
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(context.Background()) }()
	require.Eventually(t, func() bool { return c.running.Load() }, time.Second, time.Millisecond)

	require.NoError(t, c.Close(context.Background()))
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestFlatten_RoutedThroughConsumer(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewCoordinator(exec, &fakePositions{}, Options{})
	runCoordinator(t, c)

	require.NoError(t, c.Flatten(context.Background(), "aapl"))
	_, _, flattened := exec.snapshot()
	assert.Equal(t, []string{"AAPL"}, flattened)
	assert.False(t, c.Latched("AAPL"))
}

func TestFlattenAll_RoutedThroughConsumer(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewCoordinator(exec, &fakePositions{}, Options{})
	runCoordinator(t, c)

	require.NoError(t, c.FlattenAll(context.Background()))
	exec.mu.Lock()
	defer exec.mu.Unlock()
	assert.Equal(t, 1, exec.flatAll)
	assert.Empty(t, exec.flattened)
}

func TestApprover_RejectionSkipsExecution(t *testing.T) {
	exec := &fakeExecutor{}
	c := NewCoordinator(exec, &fakePositions{}, Options{
		Approver: ApproverFunc(func(context.Context, strategy.Signal) (bool, error) { return false, nil }),
	})
	runCoordinator(t, c)

	require.NoError(t, c.Offer(longEntry("AAPL")))
	require.Eventually(t, func() bool { return !c.Latched("AAPL") }, time.Second, 5*time.Millisecond)
	entries, _, _ := exec.snapshot()
	assert.Empty(t, entries)
}
