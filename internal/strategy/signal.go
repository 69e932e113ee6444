package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"intrabot/internal/trader"
)

type Kind string

const (
	KindLongEntry  Kind = "LongEntry"
	KindShortEntry Kind = "ShortEntry"
	KindLongExit   Kind = "LongExit"
	KindShortExit  Kind = "ShortExit"
)

// Entry reports whether the kind opens a position.
func (k Kind) Entry() bool {
	return k == KindLongEntry || k == KindShortEntry
}

// Side is the position side the kind opens or closes.
func (k Kind) Side() trader.Side {
	if k == KindShortEntry || k == KindShortExit {
		return trader.SideShort
	}
	return trader.SideLong
}

// Signal is one candidate action, consumed once by the coordinator.
type Signal struct {
	ID             string    `json:"id"`
	Instrument     string    `json:"instrument"`
	Kind           Kind      `json:"kind"`
	ReferencePrice float64   `json:"reference_price"`
	Time           time.Time `json:"time"`
}

func NewSignal(instrument string, kind Kind, ref float64, at time.Time) Signal {
	return Signal{
		ID:             uuid.NewString(),
		Instrument:     instrument,
		Kind:           kind,
		ReferencePrice: ref,
		Time:           at,
	}
}

func (s Signal) String() string {
	return fmt.Sprintf("%s %s ref=%.4f bar=%s id=%s", s.Instrument, s.Kind, s.ReferencePrice, s.Time.Format(time.RFC3339), s.ID)
}

// Outcome classifies one evaluation cycle.
type Outcome string

const (
	OutcomeSignal           Outcome = "signal"
	OutcomeNone             Outcome = "none"
	OutcomeConflict         Outcome = "conflict"
	OutcomeInsufficientData Outcome = "insufficient_data"
	OutcomeSuppressed       Outcome = "suppressed"
	OutcomeWarmup           Outcome = "warmup"
)
