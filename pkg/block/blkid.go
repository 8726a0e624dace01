package block

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
)

const (
	BlkidCmd = "blkid"

	PartUUID UUIDType = "PARTUUID"
)

type UUIDType string

func doCommandBlkid(ctx context.Context, executor utils.Executor, dev string, uuidType UUIDType) (*utils.Result, error) {
	return executor.Run(ctx, BlkidCmd, "-s", string(uuidType), "-o", "value", utils.GetFullDevPath(dev))
}

// GetPartUUID returns the GPT partition UUID of dev, or "" when blkid does
// not know one.
func GetPartUUID(ctx context.Context, executor utils.Executor, dev string) (string, error) {
	result, err := doCommandBlkid(ctx, executor, dev, PartUUID)
	if err != nil {
		return "", err
	}
	if result.Failed() {
		logrus.Debugf("failed to read partition uuid of %s: exit code %d", dev, result.ExitCode)
		return "", nil
	}
	return ParseBlkidValue(result.Stdout), nil
}

// ParseBlkidValue returns the first value printed by `blkid -o value`.
func ParseBlkidValue(output string) string {
	if len(output) == 0 {
		return ""
	}
	return strings.TrimSpace(strings.Split(output, "\n")[0])
}
