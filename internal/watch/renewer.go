package watch

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Renewer runs the expiring-watch sweep on a cron schedule.
type Renewer struct {
	cron   *cron.Cron
	logger zerolog.Logger
}

func NewRenewer(mgr *Manager, spec string, logger zerolog.Logger) (*Renewer, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := mgr.RenewExpiring(context.Background()); err != nil {
			logger.Error().Err(err).Msg("watch renewal sweep failed")
		}
	})
	if err != nil {
		return nil, err
	}
	return &Renewer{cron: c, logger: logger}, nil
}

func (r *Renewer) Start() {
	r.logger.Info().Msg("watch renewer started")
	r.cron.Start()
}

func (r *Renewer) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}
