package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/block"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/option"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
)

func main() {
	var opt option.Option
	app := newApp(&opt, utils.NewExecutor(), block.NewMountTable)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()

	os.Exit(exitCode(err))
}

// exitCode reports err and maps it to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return utils.ExitCodeSuccess
	}
	if utils.IsUsageError(err) {
		logrus.Debug(err)
		fmt.Println(utils.UsageMessage)
	} else {
		logrus.Error(err)
	}
	return utils.ExitCode(err)
}
