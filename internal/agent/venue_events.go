package agent

import (
	"intrabot/internal/gateway/venue"
	"intrabot/internal/logger"
	"intrabot/internal/market"
)

// LiveService is the venue.EventHandler of the gateway.
var _ venue.EventHandler = (*LiveService)(nil)

func (s *LiveService) OnTick(evt market.TickEvent) {
	s.aggregator.OnTickEvent(evt)
}

func (s *LiveService) OnHistoricalBar(instrument string, bar market.Bar) {
	if s.backfill != nil {
		s.backfill.OnHistoricalBar(instrument, bar)
	}
}

func (s *LiveService) OnHistoricalBarsEnd(instrument string) {
	if s.backfill != nil {
		s.backfill.OnHistoricalBarsEnd(instrument)
	}
}

func (s *LiveService) OnOrderStatus(evt venue.OrderStatusEvent) {
	if err := s.trader.OnOrderStatus(evt); err != nil {
		logger.Warnf("LiveService: order %d status %s not applied: %v", evt.OrderID, evt.Status, err)
	}
}
