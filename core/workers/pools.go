package workers

import "github.com/kilianp07/routecast/core/logger"

// Pools holds the named pools shared by the service.
type Pools struct {
	General      *Pool
	Location     *Pool
	Notification *Pool
}

// NewPools starts the three pools described by cfg. Defaults are applied to
// unset sizes.
func NewPools(cfg Config, log logger.Logger) *Pools {
	cfg.SetDefaults()
	return &Pools{
		General:      NewPool(General, cfg.General, log),
		Location:     NewPool(Location, cfg.Location, log),
		Notification: NewPool(Notification, cfg.Notification, log),
	}
}

// Close drains and stops every pool. Location work is drained first since
// it may feed notifications.
func (p *Pools) Close() {
	if p == nil {
		return
	}
	p.Location.Close()
	p.General.Close()
	p.Notification.Close()
}
