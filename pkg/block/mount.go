package block

import (
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
)

// MountTable answers questions about the mounts of the host.
type MountTable interface {
	// IsMountedAt returns true if source is mounted on mountPoint.
	IsMountedAt(source, mountPoint string) (bool, error)
}

type procMountTable struct {
	procRoot string
}

// NewMountTable reads the mount table of the current mount namespace, the
// one `mount` runs in.
func NewMountTable() (MountTable, error) {
	return NewProcMountTable(""), nil
}

// NewProcMountTable reads mountinfo of pid 1 below procRoot, or of the
// current process when procRoot is empty.
func NewProcMountTable(procRoot string) MountTable {
	return &procMountTable{procRoot: procRoot}
}

func (m *procMountTable) mounts() ([]*procfs.MountInfo, error) {
	if m.procRoot == "" {
		return procfs.GetMounts()
	}
	fs, err := procfs.NewFS(m.procRoot)
	if err != nil {
		return nil, err
	}
	proc, err := fs.Proc(1)
	if err != nil {
		return nil, err
	}
	return proc.MountInfo()
}

func (m *procMountTable) IsMountedAt(source, mountPoint string) (bool, error) {
	mounts, err := m.mounts()
	if err != nil {
		return false, errors.Wrap(err, "failed to read mount table")
	}
	return FindMount(mounts, source, mountPoint) != nil, nil
}

// FindMount returns the entry mounting source on mountPoint, if any.
func FindMount(mounts []*procfs.MountInfo, source, mountPoint string) *procfs.MountInfo {
	mountPoint = filepath.Clean(mountPoint)
	for _, mount := range mounts {
		if filepath.Clean(mount.MountPoint) != mountPoint {
			continue
		}
		if utils.SameDevice(mount.Source, source) {
			return mount
		}
	}
	return nil
}
