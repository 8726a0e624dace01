// Package journal keeps the journal symlink of a Ceph OSD pointing at the
// requested journal partition.
package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/block"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/option"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/request"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
)

const (
	DefaultOSDRoot    = "/var/lib/ceph/osd"
	DefaultCephConf   = "/etc/ceph/ceph.conf"
	DefaultCluster    = "ceph"
	DefaultCephOSDBin = "/usr/bin/ceph-osd"
	DefaultOSDFsType  = "xfs"
	DefaultWipeMiB    = 100

	// LinkName is the entry of the OSD data directory naming its journal.
	LinkName = "journal"

	MountCmd = "mount"
	DdCmd    = "dd"

	pidFileFormat = "/var/run/ceph/osd.%d.pid"
)

// Manager verifies and repairs OSD journal links.
type Manager struct {
	executor   utils.Executor
	mountTable block.MountTable

	osdRoot       string
	byPartUUIDDir string
	cephConf      string
	cluster       string
	cephOSDBin    string
	fsType        string
	wipeMiB       int
	dryRun        bool
}

func NewManager(executor utils.Executor, mountTable block.MountTable, opt *option.Option) *Manager {
	m := &Manager{
		executor:      executor,
		mountTable:    mountTable,
		osdRoot:       opt.OSDRoot,
		byPartUUIDDir: opt.ByPartUUIDDir,
		cephConf:      opt.CephConf,
		cluster:       opt.ClusterName,
		cephOSDBin:    opt.CephOSDBin,
		fsType:        opt.OSDFsType,
		wipeMiB:       opt.JournalWipeMiB,
		dryRun:        opt.DryRun,
	}
	if m.osdRoot == "" {
		m.osdRoot = DefaultOSDRoot
	}
	if m.byPartUUIDDir == "" {
		m.byPartUUIDDir = block.DiskByPartUUID
	}
	if m.cephConf == "" {
		m.cephConf = DefaultCephConf
	}
	if m.cluster == "" {
		m.cluster = DefaultCluster
	}
	if m.cephOSDBin == "" {
		m.cephOSDBin = DefaultCephOSDBin
	}
	if m.fsType == "" {
		m.fsType = DefaultOSDFsType
	}
	if m.wipeMiB <= 0 {
		m.wipeMiB = DefaultWipeMiB
	}
	return m
}

// MountPath returns the data directory of OSD osdID, e.g. /var/lib/ceph/osd/ceph-3.
func (m *Manager) MountPath(osdID int) string {
	return filepath.Join(m.osdRoot, fmt.Sprintf("%s-%d", m.cluster, osdID))
}

// Reconcile points the journal of the OSD at the requested journal node.
// It returns true if the link was repaired.
func (m *Manager) Reconcile(ctx context.Context, req *request.LocationRequest) (bool, error) {
	logger := logrus.WithFields(logrus.Fields{
		"osd":     req.OSDID,
		"journal": req.JournalNode,
	})

	mountPath, err := m.EnsureMounted(ctx, req.DataNode, req.OSDID)
	if err != nil {
		return false, err
	}
	if m.Verify(mountPath, req.JournalNode) {
		logger.Info("Journal location matches, no need to relocate")
		return false, nil
	}
	if m.dryRun {
		logger.Infof("Dry run: would relink %s", filepath.Join(mountPath, LinkName))
		return false, nil
	}

	if err := m.Repair(ctx, mountPath, req.JournalNode, req.OSDID); err != nil {
		return false, err
	}
	logger.Info("Journal location repaired")
	return true, nil
}

// EnsureMounted mounts dataNode on the OSD data directory unless it is
// already mounted there, and returns the directory. It never unmounts.
func (m *Manager) EnsureMounted(ctx context.Context, dataNode string, osdID int) (string, error) {
	mountPath := m.MountPath(osdID)

	mounted, err := m.mountTable.IsMountedAt(dataNode, mountPath)
	if err != nil {
		return "", err
	}
	if mounted {
		return mountPath, nil
	}
	if m.dryRun {
		logrus.Infof("Dry run: would mount %s on %s", dataNode, mountPath)
		return mountPath, nil
	}

	if err := os.MkdirAll(mountPath, 0o755); err != nil {
		return "", utils.NewDeviceOperationError("mkdir", mountPath, err)
	}
	logrus.Infof("Mounting %s on %s", dataNode, mountPath)
	result, err := m.executor.Run(ctx, MountCmd, "-t", m.fsType, dataNode, mountPath)
	if err != nil {
		return "", errors.Wrapf(err, "failed to mount %s", dataNode)
	}
	if err := utils.CheckResult("mount", dataNode, result); err != nil {
		return "", err
	}
	return mountPath, nil
}

// Verify returns true if the journal link below mountPath resolves to
// journalNode. A missing or dangling link does not.
func (m *Manager) Verify(mountPath, journalNode string) bool {
	link := filepath.Join(mountPath, LinkName)
	target, err := filepath.EvalSymlinks(link)
	if err != nil {
		logrus.Debugf("Failed to resolve %s: %v", link, err)
		return false
	}
	return utils.SameDevice(target, journalNode)
}

// Repair replaces the journal link with a stable by-partuuid link to
// journalNode, wipes the start of the journal and has ceph-osd create a
// new journal on it. A failing ceph-osd is reported but not returned.
func (m *Manager) Repair(ctx context.Context, mountPath, journalNode string, osdID int) error {
	logger := logrus.WithFields(logrus.Fields{
		"osd":     osdID,
		"journal": journalNode,
	})

	partUUID, err := block.GetPartUUID(ctx, m.executor, journalNode)
	if err != nil {
		return errors.Wrapf(err, "failed to read partition uuid of %s", journalNode)
	}
	if partUUID == "" {
		return utils.NewDeviceOperationError("blkid", journalNode, errors.New("no partition uuid found"))
	}

	target := filepath.Join(m.byPartUUIDDir, partUUID)
	link := filepath.Join(mountPath, LinkName)
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return utils.NewDeviceOperationError("unlink", link, err)
		}
	} else if !os.IsNotExist(err) {
		return utils.NewDeviceOperationError("stat", link, err)
	}
	if err := os.Symlink(target, link); err != nil {
		return utils.NewDeviceOperationError("symlink", link, err)
	}
	logger.Infof("Linked %s to %s", link, target)

	result, err := m.executor.Run(ctx, DdCmd, "if=/dev/zero", "of="+journalNode, "bs=1M", "count="+strconv.Itoa(m.wipeMiB))
	if err != nil {
		return errors.Wrapf(err, "failed to wipe %s", journalNode)
	}
	if result.Failed() {
		logger.Warnf("Failed to wipe journal, exit code %d: %s", result.ExitCode, result.Stderr)
	}

	m.mkjournal(ctx, logger, osdID)
	return nil
}

func (m *Manager) mkjournal(ctx context.Context, logger *logrus.Entry, osdID int) {
	result, err := m.executor.Run(ctx, m.cephOSDBin,
		"-i", strconv.Itoa(osdID),
		"--pid-file", fmt.Sprintf(pidFileFormat, osdID),
		"-c", m.cephConf,
		"--cluster", m.cluster,
		"--mkjournal")
	if err != nil {
		logger.Errorf("Failed to run %s: %v", m.cephOSDBin, err)
		return
	}
	if result.Failed() {
		logger.Errorf("Failed to initialize journal, exit code %d: %s", result.ExitCode, result.Stderr)
	}
}
