// Package pricing derives bracket price levels from a reference price with
// decimal arithmetic so tick rounding never drifts.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModePercent  Mode = "percent"
	ModeAbsolute Mode = "absolute"
)

var ErrInvalidReference = errors.New("pricing: reference price must be positive")

// Offsets are the entry, target and stop distances from the reference price.
// In ModePercent they are fractions of the reference.
type Offsets struct {
	Mode   Mode
	Entry  float64
	Target float64
	Stop   float64
	Tick   float64
}

// Levels are the three bracket prices.
type Levels struct {
	Entry  float64 `json:"entry"`
	Target float64 `json:"target"`
	Stop   float64 `json:"stop"`
}

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

// BracketLevels computes the levels for side ("long" or "short"). Long buys
// below the reference, targets above and stops below; short mirrors.
func BracketLevels(ref float64, side string, o Offsets) (Levels, error) {
	if ref <= 0 || math.IsNaN(ref) || math.IsInf(ref, 0) {
		return Levels{}, ErrInvalidReference
	}
	base := decFromFloat(ref)
	entry := distance(base, o.Entry, o.Mode)
	target := distance(base, o.Target, o.Mode)
	stop := distance(base, o.Stop, o.Mode)

	var lv Levels
	switch side {
	case "long":
		lv = Levels{
			Entry:  RoundToTick(decToFloat(base.Sub(entry)), o.Tick),
			Target: RoundToTick(decToFloat(base.Add(target)), o.Tick),
			Stop:   RoundToTick(decToFloat(base.Sub(stop)), o.Tick),
		}
	case "short":
		lv = Levels{
			Entry:  RoundToTick(decToFloat(base.Add(entry)), o.Tick),
			Target: RoundToTick(decToFloat(base.Sub(target)), o.Tick),
			Stop:   RoundToTick(decToFloat(base.Add(stop)), o.Tick),
		}
	default:
		return Levels{}, fmt.Errorf("pricing: unknown side %q", side)
	}
	if lv.Entry <= 0 || lv.Target <= 0 || lv.Stop <= 0 {
		return Levels{}, fmt.Errorf("pricing: non-positive level %+v for ref %.4f", lv, ref)
	}
	return lv, nil
}

func distance(base decimal.Decimal, off float64, mode Mode) decimal.Decimal {
	d := decFromFloat(off)
	if mode == ModePercent {
		return base.Mul(d)
	}
	return d
}

// RoundToTick rounds price to the nearest multiple of tick; tick <= 0 leaves it.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	t := decFromFloat(tick)
	return decToFloat(decFromFloat(price).Div(t).Round(0).Mul(t))
}

// Ratio returns reward over risk of a long or short bracket.
func Ratio(lv Levels) float64 {
	risk := decFromFloat(lv.Entry).Sub(decFromFloat(lv.Stop)).Abs()
	if risk.IsZero() {
		return 0
	}
	reward := decFromFloat(lv.Target).Sub(decFromFloat(lv.Entry)).Abs()
	return decToFloat(reward.Div(risk))
}

