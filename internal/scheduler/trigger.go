package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind is what a trigger does when it fires.
type Kind string

const (
	KindApply       Kind = "apply"
	KindDiscover    Kind = "discover"
	KindMaintenance Kind = "maintenance"
)

// trigger is one recurring schedule. next is owned by the timer loop.
type trigger struct {
	name  string
	kind  Kind
	sched cron.Schedule
	next  time.Time
}

// buildTriggers turns the configured windows into schedules: one apply
// trigger per daily time, an interval discovery sweep, and a weekly
// maintenance slot.
func buildTriggers(cfg Config) ([]*trigger, error) {
	var out []*trigger
	for _, hhmm := range cfg.DailyTimes {
		h, m, err := ParseClock(hhmm)
		if err != nil {
			return nil, err
		}
		sched, err := cron.ParseStandard(fmt.Sprintf("%d %d * * *", m, h))
		if err != nil {
			return nil, fmt.Errorf("daily time %q: %w", hhmm, err)
		}
		out = append(out, &trigger{name: "apply@" + hhmm, kind: KindApply, sched: sched})
	}

	if cfg.DiscoveryInterval > 0 {
		out = append(out, &trigger{
			name:  "discover/" + cfg.DiscoveryInterval.String(),
			kind:  KindDiscover,
			sched: cron.Every(cfg.DiscoveryInterval),
		})
	}

	if cfg.Maintenance != "" {
		sched, err := cron.ParseStandard(cfg.Maintenance)
		if err != nil {
			return nil, fmt.Errorf("maintenance schedule %q: %w", cfg.Maintenance, err)
		}
		out = append(out, &trigger{name: "maintenance", kind: KindMaintenance, sched: sched})
	}
	return out, nil
}

// ParseClock parses a 24h "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	hs, ms, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q: want HH:MM", s)
	}
	hour, err = strconv.Atoi(hs)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time %q: bad hour", s)
	}
	minute, err = strconv.Atoi(ms)
	if err != nil || minute < 0 || minute > 59 || len(ms) != 2 {
		return 0, 0, fmt.Errorf("time %q: bad minute", s)
	}
	return hour, minute, nil
}
