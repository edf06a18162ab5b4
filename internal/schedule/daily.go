// Package schedule runs the signal refresh on a cron cadence for the watch
// command.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// RefreshFunc is one scheduled refresh run as of now.
type RefreshFunc func(ctx context.Context, asOf time.Time) error

type Daily struct {
	cron *cron.Cron
	log  *logrus.Entry
}

func NewDaily(log *logrus.Entry) *Daily {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Daily{cron: cron.New(), log: log}
}

// Start registers the refresh at spec (standard cron expression, e.g.
// "30 16 * * 1-5" for weekdays after close) and runs until ctx is done.
// A failed run is logged and the schedule keeps going. Context
// cancellation is the normal way to stop and returns nil.
func (d *Daily) Start(ctx context.Context, spec string, refresh RefreshFunc) error {
	_, err := d.cron.AddFunc(spec, func() {
		now := time.Now()
		d.log.WithField("at", now.Format(time.RFC3339)).Info("scheduled refresh starting")
		if err := refresh(ctx, now); err != nil {
			d.log.WithError(err).Error("scheduled refresh failed")
		}
	})
	if err != nil {
		return err
	}

	d.cron.Start()
	d.log.WithField("spec", spec).Info("refresh schedule started")

	<-ctx.Done()
	stopCtx := d.cron.Stop()
	<-stopCtx.Done()
	d.log.Info("refresh schedule stopped")
	return nil
}
