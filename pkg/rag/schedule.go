package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five-field cron expression or a descriptor such as
// "@hourly" or "@every 10m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	if expr == "" {
		return nil, fmt.Errorf("schedule expression cannot be empty")
	}
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	return sched, nil
}

// RunSchedule calls fn at every activation of sched until ctx is done. Runs
// never overlap; an activation missed while fn runs is skipped.
func RunSchedule(ctx context.Context, sched cron.Schedule, logger zerolog.Logger, fn func(context.Context)) {
	for {
		next := sched.Next(time.Now())
		logger.Debug().Time("next_run", next).Msg("Next scheduled index pass")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			fn(ctx)
		}
	}
}
