package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/option"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/request"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils/fake"
)

type fakeMountTable struct {
	mounts map[string]string
	err    error
}

func (f *fakeMountTable) IsMountedAt(source, mountPoint string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.mounts[mountPoint] == source, nil
}

type testHost struct {
	root          string
	osdRoot       string
	byPartUUIDDir string
	devDir        string
}

func newTestHost(t *testing.T) *testHost {
	t.Helper()
	root := t.TempDir()
	h := &testHost{
		root:          root,
		osdRoot:       filepath.Join(root, "osd"),
		byPartUUIDDir: filepath.Join(root, "by-partuuid"),
		devDir:        filepath.Join(root, "dev"),
	}
	for _, dir := range []string{h.osdRoot, h.byPartUUIDDir, h.devDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	return h
}

// addPartition creates a device node stand-in and its by-partuuid link.
func (h *testHost) addPartition(t *testing.T, name, partUUID string) string {
	t.Helper()
	node := filepath.Join(h.devDir, name)
	require.NoError(t, os.WriteFile(node, nil, 0o600))
	require.NoError(t, os.Symlink(node, filepath.Join(h.byPartUUIDDir, partUUID)))
	return node
}

func (h *testHost) option() *option.Option {
	return &option.Option{
		OSDRoot:       h.osdRoot,
		ByPartUUIDDir: h.byPartUUIDDir,
	}
}

func Test_MountPath(t *testing.T) {
	manager := NewManager(fake.NewExecutor(), &fakeMountTable{}, &option.Option{})
	assert.Equal(t, "/var/lib/ceph/osd/ceph-3", manager.MountPath(3))

	manager = NewManager(fake.NewExecutor(), &fakeMountTable{}, &option.Option{OSDRoot: "/srv/osd", ClusterName: "site"})
	assert.Equal(t, "/srv/osd/site-12", manager.MountPath(12))
}

func Test_EnsureMounted(t *testing.T) {
	var testCases = []struct {
		name          string
		mounted       bool
		mountExitCode int
		expectedErr   bool
		expectedMount int
	}{
		{
			name:          "already mounted",
			mounted:       true,
			expectedMount: 0,
		},
		{
			name:          "not mounted",
			expectedMount: 1,
		},
		{
			name:          "mount fails",
			mountExitCode: 32,
			expectedErr:   true,
			expectedMount: 1,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHost(t)
			executor := fake.NewExecutor()
			manager := NewManager(executor, &fakeMountTable{}, h.option())
			mountPath := manager.MountPath(3)
			if tc.mounted {
				manager.mountTable = &fakeMountTable{mounts: map[string]string{mountPath: "/dev/sdc1"}}
			}
			executor.SetResponse("mount -t xfs /dev/sdc1 "+mountPath, &utils.Result{
				ExitCode: tc.mountExitCode,
				Stderr:   "mount: wrong fs type",
			})

			path, err := manager.EnsureMounted(context.Background(), "/dev/sdc1", 3)
			assert.Equal(t, tc.expectedMount, executor.Count("mount "))
			if tc.expectedErr {
				require.Error(t, err)
				assert.True(t, utils.IsDeviceOperationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, mountPath, path)
			if !tc.mounted {
				assert.DirExists(t, mountPath)
			}
		})
	}
}

func Test_EnsureMountedMountTableError(t *testing.T) {
	executor := fake.NewExecutor()
	manager := NewManager(executor, &fakeMountTable{err: errors.New("boom")}, &option.Option{OSDRoot: t.TempDir()})

	_, err := manager.EnsureMounted(context.Background(), "/dev/sdc1", 3)
	require.Error(t, err)
	assert.Empty(t, executor.Commands())
}

func Test_Verify(t *testing.T) {
	h := newTestHost(t)
	manager := NewManager(fake.NewExecutor(), &fakeMountTable{}, h.option())
	mountPath := manager.MountPath(3)
	require.NoError(t, os.MkdirAll(mountPath, 0o755))
	sdc1 := h.addPartition(t, "sdc1", "uuid-c")
	sdd1 := h.addPartition(t, "sdd1", "uuid-d")
	link := filepath.Join(mountPath, LinkName)

	assert.False(t, manager.Verify(mountPath, sdd1), "missing link")

	require.NoError(t, os.Symlink(filepath.Join(h.byPartUUIDDir, "uuid-c"), link))
	assert.True(t, manager.Verify(mountPath, sdc1))
	assert.False(t, manager.Verify(mountPath, sdd1))

	require.NoError(t, os.Remove(link))
	require.NoError(t, os.Symlink(filepath.Join(h.byPartUUIDDir, "uuid-gone"), link))
	assert.False(t, manager.Verify(mountPath, sdd1), "dangling link")
}

func Test_ReconcileRelinksJournal(t *testing.T) {
	h := newTestHost(t)
	executor := fake.NewExecutor()
	manager := NewManager(executor, &fakeMountTable{}, h.option())
	mountPath := manager.MountPath(3)
	manager.mountTable = &fakeMountTable{mounts: map[string]string{mountPath: "/dev/sdc1"}}
	require.NoError(t, os.MkdirAll(mountPath, 0o755))

	h.addPartition(t, "sdc1", "uuid-c")
	sdd1 := h.addPartition(t, "sdd1", "uuid-d")
	link := filepath.Join(mountPath, LinkName)
	require.NoError(t, os.Symlink(filepath.Join(h.byPartUUIDDir, "uuid-c"), link))
	executor.SetResponse("blkid -s PARTUUID -o value "+sdd1, &utils.Result{Stdout: "uuid-d\n"})

	req := &request.LocationRequest{DataNode: "/dev/sdc1", JournalNode: sdd1, OSDID: 3}
	changed, err := manager.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, changed)

	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.byPartUUIDDir, "uuid-d"), target)
	assert.Equal(t, []string{
		"blkid -s PARTUUID -o value " + sdd1,
		"dd if=/dev/zero of=" + sdd1 + " bs=1M count=100",
		"/usr/bin/ceph-osd -i 3 --pid-file /var/run/ceph/osd.3.pid -c /etc/ceph/ceph.conf --cluster ceph --mkjournal",
	}, executor.Commands())

	// second run finds the link in place
	executor.Reset()
	changed, err = manager.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, executor.Commands())
}

func Test_RepairCreatesMissingLink(t *testing.T) {
	h := newTestHost(t)
	executor := fake.NewExecutor()
	manager := NewManager(executor, &fakeMountTable{}, h.option())
	mountPath := manager.MountPath(0)
	require.NoError(t, os.MkdirAll(mountPath, 0o755))
	sdd1 := h.addPartition(t, "sdd1", "uuid-d")
	executor.SetResponse("blkid -s PARTUUID -o value "+sdd1, &utils.Result{Stdout: "uuid-d\n"})

	require.NoError(t, manager.Repair(context.Background(), mountPath, sdd1, 0))
	assert.True(t, manager.Verify(mountPath, sdd1))
}

func Test_RepairFailures(t *testing.T) {
	var testCases = []struct {
		name         string
		blkid        *utils.Result
		dd           *utils.Result
		cephOSD      *utils.Result
		expectedErr  bool
		expectedLink bool
		expectedCmds int
	}{
		{
			name:         "no partition uuid",
			blkid:        &utils.Result{ExitCode: 2},
			expectedErr:  true,
			expectedCmds: 1,
		},
		{
			name:         "empty partition uuid",
			blkid:        &utils.Result{Stdout: "\n"},
			expectedErr:  true,
			expectedCmds: 1,
		},
		{
			name:         "wipe fails",
			blkid:        &utils.Result{Stdout: "uuid-d\n"},
			dd:           &utils.Result{ExitCode: 1, Stderr: "dd: failed to open"},
			expectedLink: true,
			expectedCmds: 3,
		},
		{
			name:         "ceph-osd fails",
			blkid:        &utils.Result{Stdout: "uuid-d\n"},
			cephOSD:      &utils.Result{ExitCode: 1, Stderr: "mkjournal error creating fresh journal"},
			expectedLink: true,
			expectedCmds: 3,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHost(t)
			executor := fake.NewExecutor()
			manager := NewManager(executor, &fakeMountTable{}, h.option())
			mountPath := manager.MountPath(3)
			require.NoError(t, os.MkdirAll(mountPath, 0o755))
			sdd1 := h.addPartition(t, "sdd1", "uuid-d")

			executor.SetResponse("blkid -s PARTUUID -o value "+sdd1, tc.blkid)
			if tc.dd != nil {
				executor.SetResponse("dd if=/dev/zero of="+sdd1+" bs=1M count=100", tc.dd)
			}
			if tc.cephOSD != nil {
				executor.SetResponse("/usr/bin/ceph-osd -i 3 --pid-file /var/run/ceph/osd.3.pid -c /etc/ceph/ceph.conf --cluster ceph --mkjournal", tc.cephOSD)
			}

			err := manager.Repair(context.Background(), mountPath, sdd1, 3)
			if tc.expectedErr {
				require.Error(t, err)
				assert.True(t, utils.IsDeviceOperationError(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.expectedLink, manager.Verify(mountPath, sdd1))
			assert.Len(t, executor.Commands(), tc.expectedCmds)
		})
	}
}

func Test_ReconcileDryRun(t *testing.T) {
	h := newTestHost(t)
	opt := h.option()
	opt.DryRun = true
	executor := fake.NewExecutor()
	manager := NewManager(executor, &fakeMountTable{}, opt)

	changed, err := manager.Reconcile(context.Background(), &request.LocationRequest{DataNode: "/dev/sdc1", JournalNode: "/dev/sdd1", OSDID: 3})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, executor.Commands())
	assert.NoDirExists(t, manager.MountPath(3))
}
