package udev

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
)

const (
	UdevadmCmd = "udevadm"

	DefaultSettleTimeout = 10 * time.Second
)

// Settler waits for udev to finish materializing device nodes. A settle
// that times out is logged and tolerated, the following device query tells
// whether the node is really there.
type Settler struct {
	executor utils.Executor
	timeout  time.Duration
}

func NewSettler(executor utils.Executor, timeout time.Duration) *Settler {
	if timeout <= 0 {
		timeout = DefaultSettleTimeout
	}
	return &Settler{
		executor: executor,
		timeout:  timeout,
	}
}

// WaitFor returns as soon as node exists or the udev event queue is empty.
func (s *Settler) WaitFor(ctx context.Context, node string) error {
	return s.settle(ctx, node, "-E", node)
}

// Settle waits for the udev event queue to drain, bounded by the timeout.
func (s *Settler) Settle(ctx context.Context) error {
	return s.settle(ctx, "", "-t", s.timeoutSeconds())
}

func (s *Settler) settle(ctx context.Context, node string, args ...string) error {
	args = append([]string{"settle"}, args...)
	if node != "" {
		args = append(args, "-t", s.timeoutSeconds())
	}
	result, err := s.executor.Run(ctx, UdevadmCmd, args...)
	if err != nil {
		return err
	}
	if result.Failed() {
		logrus.WithFields(logrus.Fields{
			"device":   node,
			"exitCode": result.ExitCode,
		}).Warnf("udevadm settle did not complete: %s", result.Stderr)
	}
	return nil
}

func (s *Settler) timeoutSeconds() string {
	secs := int(s.timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("%d", secs)
}
