package spamguard

import (
	"time"

	"github.com/Abraxas-365/craftable/logx"
	"github.com/robfig/cron/v3"
)

// StartGC schedules Guard.GC every cfg.GCInterval using the same cron
// runner the teacher uses for its own periodic jobs. Returns a stop
// function.
func (g *Guard) StartGC() func() {
	c := cron.New()
	spec := "@every " + g.cfg.GCInterval.String()
	_, err := c.AddFunc(spec, func() {
		g.GC(time.Now())
		logx.Info("spamguard: GC sweep complete")
	})
	if err != nil {
		logx.Error("spamguard: failed to schedule GC: %v", err)
		return func() {}
	}
	c.Start()
	return func() { <-c.Stop().Done() }
}
