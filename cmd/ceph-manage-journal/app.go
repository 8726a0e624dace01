package main

import (
	"os"

	"github.com/ehazlett/simplelog"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/block"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/journal"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/option"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/partition"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/request"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/udev"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/version"
)

const appName = "ceph-manage-journal"

type mountTableFactory func() (block.MountTable, error)

func newApp(opt *option.Option, executor utils.Executor, newMountTable mountTableFactory) *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = version.FriendlyVersion()
	app.Usage = "ceph-manage-journal keeps Ceph OSD journal partitions and journal links in the requested state."
	app.UsageText = appName + " [global options] partitions|location <dict>"
	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:        "debug",
			EnvVars:     []string{"CMJ_DEBUG"},
			Usage:       "enable debug logs",
			Destination: &opt.Debug,
		},
		&cli.BoolFlag{
			Name:        "trace",
			EnvVars:     []string{"CMJ_TRACE"},
			Usage:       "Enable trace logs",
			Destination: &opt.Trace,
		},
		&cli.StringFlag{
			Name:        "log-format",
			EnvVars:     []string{"CMJ_LOG_FORMAT"},
			Usage:       "Log format",
			Value:       "text",
			DefaultText: "text",
			Destination: &opt.LogFormat,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			EnvVars:     []string{"CMJ_DRY_RUN"},
			Usage:       "Only report what would be changed",
			Destination: &opt.DryRun,
		},
		&cli.StringFlag{
			Name:        "osd-root",
			EnvVars:     []string{"CMJ_OSD_ROOT"},
			Usage:       "Directory the OSD data partitions are mounted below",
			Value:       journal.DefaultOSDRoot,
			DefaultText: journal.DefaultOSDRoot,
			Destination: &opt.OSDRoot,
		},
		&cli.StringFlag{
			Name:        "by-partuuid-dir",
			EnvVars:     []string{"CMJ_BY_PARTUUID_DIR"},
			Usage:       "Directory of the stable partition uuid links",
			Value:       block.DiskByPartUUID,
			DefaultText: block.DiskByPartUUID,
			Destination: &opt.ByPartUUIDDir,
		},
		&cli.StringFlag{
			Name:        "ceph-conf",
			EnvVars:     []string{"CMJ_CEPH_CONF"},
			Usage:       "Ceph configuration file passed to ceph-osd",
			Value:       journal.DefaultCephConf,
			DefaultText: journal.DefaultCephConf,
			Destination: &opt.CephConf,
		},
		&cli.StringFlag{
			Name:        "cluster",
			EnvVars:     []string{"CMJ_CLUSTER"},
			Usage:       "Ceph cluster name",
			Value:       journal.DefaultCluster,
			DefaultText: journal.DefaultCluster,
			Destination: &opt.ClusterName,
		},
		&cli.StringFlag{
			Name:        "ceph-osd-bin",
			EnvVars:     []string{"CMJ_CEPH_OSD_BIN"},
			Usage:       "Path of the ceph-osd binary",
			Value:       journal.DefaultCephOSDBin,
			DefaultText: journal.DefaultCephOSDBin,
			Destination: &opt.CephOSDBin,
		},
		&cli.StringFlag{
			Name:        "osd-fs-type",
			EnvVars:     []string{"CMJ_OSD_FS_TYPE"},
			Usage:       "Filesystem type of the OSD data partitions",
			Value:       journal.DefaultOSDFsType,
			DefaultText: journal.DefaultOSDFsType,
			Destination: &opt.OSDFsType,
		},
		&cli.DurationFlag{
			Name:        "settle-timeout",
			EnvVars:     []string{"CMJ_SETTLE_TIMEOUT"},
			Usage:       "Maximum time to wait for udev to settle",
			Value:       udev.DefaultSettleTimeout,
			DefaultText: udev.DefaultSettleTimeout.String(),
			Destination: &opt.SettleTimeout,
		},
		&cli.IntFlag{
			Name:        "journal-wipe-mib",
			EnvVars:     []string{"CMJ_JOURNAL_WIPE_MIB"},
			Usage:       "Amount of MiB zeroed at the start of a relocated journal",
			Value:       journal.DefaultWipeMiB,
			DefaultText: "100",
			Destination: &opt.JournalWipeMiB,
		},
	}

	app.Before = func(_ *cli.Context) error {
		initLogs(opt)
		return nil
	}
	app.OnUsageError = func(_ *cli.Context, err error, _ bool) error {
		return utils.NewUsageError("%v", err)
	}
	app.Commands = []*cli.Command{
		{
			Name:      "partitions",
			Usage:     "Verify the journal disk partitions and repartition the disk on mismatch",
			ArgsUsage: "\"{'disk_node': <disk>, 'journals': [<MiB>, ...]}\"",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return utils.NewUsageError("partitions takes exactly one argument, got %d", c.NArg())
				}
				req, err := request.ParsePartitions(c.Args().First())
				if err != nil {
					return err
				}
				settler := udev.NewSettler(executor, opt.SettleTimeout)
				_, err = partition.NewReconciler(executor, settler, opt).Reconcile(c.Context, req)
				return err
			},
			OnUsageError: app.OnUsageError,
		},
		{
			Name:      "location",
			Usage:     "Verify the journal link of an OSD and relink it on mismatch",
			ArgsUsage: "\"{'data_node': <partition>, 'journal_node': <partition>, 'osdid': <id>}\"",
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return utils.NewUsageError("location takes exactly one argument, got %d", c.NArg())
				}
				req, err := request.ParseLocation(c.Args().First())
				if err != nil {
					return err
				}
				mountTable, err := newMountTable()
				if err != nil {
					return err
				}
				_, err = journal.NewManager(executor, mountTable, opt).Reconcile(c.Context, req)
				return err
			},
			OnUsageError: app.OnUsageError,
		},
	}
	app.Action = func(c *cli.Context) error {
		if c.NArg() == 0 {
			return utils.NewUsageError("no command given")
		}
		return utils.NewUsageError("unknown command %q", c.Args().First())
	}

	return app
}

func initLogs(opt *option.Option) {
	switch opt.LogFormat {
	case "simple":
		logrus.SetFormatter(&simplelog.StandardFormatter{})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		logrus.SetFormatter(&logrus.TextFormatter{})
	}
	logrus.SetOutput(os.Stdout)
	if opt.Debug {
		logrus.SetLevel(logrus.DebugLevel)
		logrus.Debugf("Loglevel set to [%v]", logrus.DebugLevel)
	}
	if opt.Trace {
		logrus.SetLevel(logrus.TraceLevel)
		logrus.Tracef("Loglevel set to [%v]", logrus.TraceLevel)
	}
	logrus.Debugf("%s %s, settle timeout %s, dry run %v", appName, version.FriendlyVersion(), opt.SettleTimeout, opt.DryRun)
}
