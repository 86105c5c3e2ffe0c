package health

import (
	"context"
	"time"

	"github.com/Bitsy-Chuck/pomodex/internal/runtime"
)

// RuntimeChecker pings the container runtime daemon.
type RuntimeChecker struct {
	rt runtime.ContainerRuntime
}

func NewRuntimeChecker(rt runtime.ContainerRuntime) *RuntimeChecker {
	return &RuntimeChecker{rt: rt}
}

func (c *RuntimeChecker) Type() CheckType { return CheckTypeRuntime }

func (c *RuntimeChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.rt.Ping(ctx)
	res := Result{Healthy: err == nil, Duration: time.Since(start), CheckedAt: start}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}
