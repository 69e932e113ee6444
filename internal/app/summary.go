package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

type StartupSummary struct {
	Env         string
	HTTPAddr    string
	GatewayMode string
	StorePath   string
	Instruments []string
	Watchlist   string
	Session     SessionSummary
	Trading     TradingSummary
}

type SessionSummary struct {
	Timezone string
	Open     string
	Close    string
	Cutoff   string
	Warmup   time.Duration
}

type TradingSummary struct {
	EntryInterval   time.Duration
	ExitInterval    time.Duration
	Quantity        float64
	OffsetMode      string
	EntryOffset     float64
	TargetOffset    float64
	StopOffset      float64
	AllowOutsideRTH bool
}

func (s *StartupSummary) Print() {
	s.Write(os.Stdout)
}

func (s *StartupSummary) Write(w io.Writer) {
	title := "STARTUP SUMMARY"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintln(w, "[APP]")
	fmt.Fprintf(w, "  env:        %s\n", orDash(s.Env))
	fmt.Fprintf(w, "  http:       %s\n", orDash(s.HTTPAddr))
	fmt.Fprintf(w, "  gateway:    %s\n", orDash(s.GatewayMode))
	fmt.Fprintf(w, "  store:      %s\n", orDash(s.StorePath))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[INSTRUMENTS]")
	fmt.Fprintf(w, "  count:      %d\n", len(s.Instruments))
	fmt.Fprintf(w, "  symbols:    %s\n", formatList(s.Instruments))
	fmt.Fprintf(w, "  watchlist:  %s\n", orDash(s.Watchlist))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[SESSION]")
	fmt.Fprintf(w, "  hours:      %s-%s %s\n", s.Session.Open, s.Session.Close, s.Session.Timezone)
	fmt.Fprintf(w, "  cutoff:     %s\n", s.Session.Cutoff)
	fmt.Fprintf(w, "  warm-up:    %s\n", s.Session.Warmup)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[TRADING]")
	fmt.Fprintf(w, "  intervals:  entry=%s exit=%s\n", s.Trading.EntryInterval, s.Trading.ExitInterval)
	fmt.Fprintf(w, "  quantity:   %g\n", s.Trading.Quantity)
	fmt.Fprintf(w, "  offsets:    %s entry=%g target=%g stop=%g\n", s.Trading.OffsetMode, s.Trading.EntryOffset, s.Trading.TargetOffset, s.Trading.StopOffset)
	fmt.Fprintf(w, "  outside RTH: %t\n", s.Trading.AllowOutsideRTH)
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
