package daemon

import (
	"context"
	"math/rand/v2"
	"time"

	"aerial/internal/logging"
	"aerial/internal/media"
)

var defaultCheckHours = []int{4, 16}

// runChecks drives the periodic episode check until ctx is cancelled. The
// schedule is the configured hours of day with a random minute; the
// check-now channel short-circuits the wait.
func (d *Daemon) runChecks(ctx context.Context) {
	hours, err := d.cfg.CheckHours()
	if err != nil || len(hours) == 0 {
		if err != nil {
			d.logger.Warn("invalid check hours, using defaults", logging.Error(err))
		}
		hours = defaultCheckHours
	}

	for {
		next := nextCheckTime(time.Now(), hours)
		d.setNextCheck(next)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-d.checkNow:
			timer.Stop()
		case <-timer.C:
		}

		d.check(ctx)
	}
}

// check scans the library for wanted, aired episodes and enqueues search
// results. Episodes already queued or active are skipped by the
// scheduler's duplicate guard.
func (d *Daemon) check(ctx context.Context) {
	started := time.Now()
	episodes, err := d.store.NeededEpisodes(ctx)
	if err != nil {
		d.logger.Error("episode scan failed", logging.Error(err))
		return
	}

	now := time.Now()
	bySeries := make(map[int64][]*media.Episode)
	for _, ep := range episodes {
		if !ep.Ready(now) {
			continue
		}
		if ep.Filename != "" && ep.LastCandidate != "" {
			d.logger.Info("resuming partial transfer",
				logging.String(logging.FieldEpisode, ep.Code()),
				logging.String(logging.FieldCandidate, ep.LastCandidate))
		}
		bySeries[ep.SeriesID] = append(bySeries[ep.SeriesID], ep)
	}
	if len(bySeries) == 0 {
		d.logger.Debug("no episodes due for acquisition")
		return
	}

	enqueued := 0
	for seriesID, eps := range bySeries {
		if ctx.Err() != nil {
			return
		}
		series, err := d.store.SeriesByID(ctx, seriesID)
		if err != nil {
			d.logger.Error("load series failed",
				logging.Int64("series_id", seriesID),
				logging.Error(err))
			continue
		}

		items, err := d.searcher.Search(ctx, series, eps)
		if err != nil {
			return
		}
		if len(items) == 0 {
			d.logger.Debug("no candidates found",
				logging.String(logging.FieldSeries, series.Name),
				logging.Int("episodes", len(eps)))
			continue
		}
		enqueued += d.sched.Enqueue(items...)
	}

	d.logger.Info("episode check complete",
		logging.Int("wanted", len(episodes)),
		logging.Int("enqueued", enqueued),
		logging.Duration("elapsed", time.Since(started)))
}

func (d *Daemon) setNextCheck(next time.Time) {
	d.mu.Lock()
	d.nextCheck = next
	d.mu.Unlock()
}

// NextCheck reports when the next scheduled episode check fires.
func (d *Daemon) NextCheck() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextCheck
}

// nextCheckTime picks the next configured hour strictly after now, rolling
// to the first hour of the next day when today's hours have passed. The
// minute is randomized so a fleet of daemons does not hit indexers in
// lockstep.
func nextCheckTime(now time.Time, hours []int) time.Time {
	minute := rand.IntN(60)
	for _, hour := range hours {
		at := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if at.After(now) {
			return at
		}
	}
	tomorrow := now.AddDate(0, 0, 1)
	return time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), hours[0], minute, 0, 0, now.Location())
}
