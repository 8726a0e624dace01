package partition

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/block"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/option"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/request"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/udev"
	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
)

// FirstPartitionStartMiB is where the first journal partition begins, which
// leaves room for the primary GPT header.
const FirstPartitionStartMiB int64 = 1

// Extent is the [StartMiB, EndMiB) range mkpart is called with for the
// partition at Index (1-based).
type Extent struct {
	Index    int
	StartMiB int64
	EndMiB   int64
}

// Plan lays out sizes back to back starting at FirstPartitionStartMiB.
func Plan(sizes []int64) []Extent {
	extents := make([]Extent, 0, len(sizes))
	cursor := FirstPartitionStartMiB
	for i, size := range sizes {
		extents = append(extents, Extent{
			Index:    i + 1,
			StartMiB: cursor,
			EndMiB:   cursor + size,
		})
		cursor += size
	}
	return extents
}

// Reconciler keeps the partition table of a journal disk in the requested
// layout.
type Reconciler struct {
	executor      utils.Executor
	settler       *udev.Settler
	byPartUUIDDir string
	dryRun        bool
}

func NewReconciler(executor utils.Executor, settler *udev.Settler, opt *option.Option) *Reconciler {
	byPartUUIDDir := opt.ByPartUUIDDir
	if byPartUUIDDir == "" {
		byPartUUIDDir = block.DiskByPartUUID
	}
	return &Reconciler{
		executor:      executor,
		settler:       settler,
		byPartUUIDDir: byPartUUIDDir,
		dryRun:        opt.DryRun,
	}
}

// Reconcile repartitions the disk unless it already matches the request.
// It returns true if the disk was rewritten.
func (r *Reconciler) Reconcile(ctx context.Context, req *request.PartitionsRequest) (bool, error) {
	logger := logrus.WithField("disk", req.DiskNode)

	matched, err := r.Verify(ctx, req.DiskNode, req.Journals)
	if err != nil {
		return false, err
	}
	if matched {
		logger.Info("Partition table matches, no need to repartition")
		return false, nil
	}

	if r.dryRun {
		for _, extent := range Plan(req.Journals) {
			logger.Infof("Dry run: would create partition %d at [%d, %d) MiB", extent.Index, extent.StartMiB, extent.EndMiB)
		}
		return false, nil
	}

	if err := r.Reconstruct(ctx, req.DiskNode, req.Journals); err != nil {
		return false, err
	}
	logger.Infof("Repartitioned disk with %d journal partitions", len(req.Journals))
	return true, nil
}

// Verify returns true if disk carries a GPT whose first len(sizes)
// partitions have exactly the given sizes in MiB. Anything unreadable
// counts as a mismatch; an error is only returned when a command could not
// be run at all.
func (r *Reconciler) Verify(ctx context.Context, disk string, sizes []int64) (bool, error) {
	logger := logrus.WithField("disk", disk)

	if err := r.settler.WaitFor(ctx, disk); err != nil {
		return false, err
	}
	table, err := block.ReadPartitionTable(ctx, r.executor, disk)
	if err != nil {
		return false, errors.Wrapf(err, "failed to read partition table of %s", disk)
	}
	if !table.IsGPT() {
		logger.Infof("Partition table format %q is not GPT, zapping", table.Format)
		return false, nil
	}
	if len(table.Partitions) > len(sizes) {
		logger.Debugf("Ignoring %d partitions beyond the requested %d", len(table.Partitions)-len(sizes), len(sizes))
	}

	for i, size := range sizes {
		node := block.PartitionNode(disk, i+1)
		if err := r.settler.WaitFor(ctx, node); err != nil {
			return false, err
		}
		output, err := block.ReadDiskSize(ctx, r.executor, node)
		if err != nil {
			return false, errors.Wrapf(err, "failed to read size of %s", node)
		}
		if !block.SizeMatches(output, node, size) {
			logger.WithField("partition", node).Infof("Partition is not %d%s", size, block.UnitMiB)
			return false, nil
		}
	}

	if err := r.settler.Settle(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Reconstruct replaces the partition table of disk with a fresh GPT holding
// one partition per size. Stale by-partuuid links of the old partitions are
// removed. A failed step aborts the remaining ones without rollback.
func (r *Reconciler) Reconstruct(ctx context.Context, disk string, sizes []int64) error {
	logger := logrus.WithField("disk", disk)

	stale := r.staleLinks(disk)

	result, err := r.executor.Run(ctx, block.PartedCmd, "-s", disk, "mktable", block.GPT)
	if err != nil {
		return errors.Wrapf(err, "failed to create partition table on %s", disk)
	}
	if err := utils.CheckResult("mktable", disk, result); err != nil {
		return err
	}

	for _, link := range stale {
		if err := os.Remove(link); err != nil && !os.IsNotExist(err) {
			logger.Warnf("Failed to remove stale link %s: %v", link, err)
			continue
		}
		logger.Debugf("Removed stale link %s", link)
	}

	for _, extent := range Plan(sizes) {
		result, err := r.executor.Run(ctx, block.PartedCmd, "-s", disk, "unit", "mib", "mkpart", "primary",
			strconv.FormatInt(extent.StartMiB, 10), strconv.FormatInt(extent.EndMiB, 10))
		if err != nil {
			return errors.Wrapf(err, "failed to create partition %d on %s", extent.Index, disk)
		}
		if err := utils.CheckResult("mkpart", disk, result); err != nil {
			return err
		}
		logger.Debugf("Created partition %d at [%d, %d) MiB", extent.Index, extent.StartMiB, extent.EndMiB)
	}

	return r.settler.Settle(ctx)
}

// staleLinks lists the by-partuuid links pointing at disk or its
// partitions. They have to be resolved before the table is rewritten, as
// the partition nodes vanish with it.
func (r *Reconciler) staleLinks(disk string) []string {
	entries, err := os.ReadDir(r.byPartUUIDDir)
	if err != nil {
		if !os.IsNotExist(err) {
			logrus.Warnf("Failed to list %s: %v", r.byPartUUIDDir, err)
		}
		return nil
	}

	resolvedDisk, err := utils.ResolveLink(disk)
	if err != nil {
		resolvedDisk = disk
	}

	var links []string
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 {
			continue
		}
		link := filepath.Join(r.byPartUUIDDir, entry.Name())
		target, err := utils.ResolveLink(link)
		if err != nil {
			logrus.Debugf("Skipping unreadable link %s: %v", link, err)
			continue
		}
		if block.BelongsToDisk(target, disk) || block.BelongsToDisk(target, resolvedDisk) {
			links = append(links, link)
		}
	}
	return links
}
