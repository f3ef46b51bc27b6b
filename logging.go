package zsc

import (
	"github.com/shimmeringbee/logwrap"
	"github.com/shimmeringbee/logwrap/impl/golog"
	"log"
)

func (c *Controller) WithGoLogger(parentLogger *log.Logger) {
	c.WithLogWrapLogger(logwrap.New(golog.Wrap(parentLogger)))
}

func (c *Controller) WithLogWrapLogger(lw logwrap.Logger) {
	c.logger = lw
}
