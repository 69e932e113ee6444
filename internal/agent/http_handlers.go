package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"

	livehttp "intrabot/internal/transport/http/live"
)

var _ livehttp.LiveHandler = (*LiveService)(nil)

func (s *LiveService) GatewayConnected() bool {
	return s.gateway.Connected()
}

// Positions returns every tracked instrument, flat ones included.
func (s *LiveService) Positions() []livehttp.PositionView {
	seen := make(map[string]struct{})
	out := make([]livehttp.PositionView, 0)
	for _, st := range s.trader.Snapshot() {
		seen[st.Instrument] = struct{}{}
		out = append(out, livehttp.NewPositionView(st, s.trader.OpenOrders(st.Instrument)))
	}
	for _, inst := range s.Instruments() {
		if _, ok := seen[inst]; ok {
			continue
		}
		out = append(out, livehttp.NewPositionView(s.trader.State(inst), nil))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out
}

func (s *LiveService) Position(instrument string) (livehttp.PositionView, bool) {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	for _, view := range s.Positions() {
		if view.Instrument == instrument {
			return view, true
		}
	}
	return livehttp.PositionView{}, false
}

func (s *LiveService) CoordinatorStatus() livehttp.CoordinatorStatus {
	return livehttp.CoordinatorStatus{
		QueueDepth:  s.coordinator.Depth(),
		Latched:     s.coordinator.LatchedInstruments(),
		Instruments: s.Instruments(),
		EntriesOpen: s.calendar == nil || s.calendar.TradableAt(s.nowFn()),
	}
}

func (s *LiveService) OpenOrders(ctx context.Context) ([]livehttp.OrderView, error) {
	if s.journal == nil {
		return nil, fmt.Errorf("order journal not configured")
	}
	recs, err := s.journal.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]livehttp.OrderView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, livehttp.OrderView{
			OrderID:     rec.OrderID,
			ParentID:    rec.ParentID,
			Instrument:  rec.Instrument,
			Role:        rec.Role,
			Action:      rec.Action,
			Type:        rec.Type,
			Quantity:    rec.Quantity,
			LimitPrice:  rec.LimitPrice,
			AuxPrice:    rec.AuxPrice,
			Status:      rec.Status,
			SubmittedAt: rec.SubmittedAt,
		})
	}
	return out, nil
}

// Flatten routes a manual flatten through the coordinator so it is serialized
// with signal handling.
func (s *LiveService) Flatten(ctx context.Context, instrument string) error {
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	if instrument == "" {
		return fmt.Errorf("empty instrument")
	}
	if err := s.coordinator.Flatten(ctx, instrument); err != nil {
		return fmt.Errorf("flatten %s: %w", instrument, err)
	}
	return nil
}
