package option

import "time"

type Option struct {
	Debug     bool
	Trace     bool
	LogFormat string
	DryRun    bool

	OSDRoot        string
	ByPartUUIDDir  string
	CephConf       string
	ClusterName    string
	CephOSDBin     string
	OSDFsType      string
	SettleTimeout  time.Duration
	JournalWipeMiB int
}
