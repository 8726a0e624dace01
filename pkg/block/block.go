package block

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// GPT is the only partition table format journal disks are accepted with.
	GPT = "gpt"
	// DiskByPartUUID is where udev publishes stable links to GPT partitions.
	DiskByPartUUID = "/dev/disk/by-partuuid"
)

// PartitionTable is the partition table of a disk as reported by parted.
type PartitionTable struct {
	Format     string      `json:"format"`
	Partitions []Partition `json:"partitions"`
}

// Partition is one row of the parted partition listing.
type Partition struct {
	Number int    `json:"number"`
	Start  string `json:"start"`
	End    string `json:"end"`
	Size   string `json:"size"`
}

// IsGPT returns true if the table was recognized as a GUID partition table.
func (t *PartitionTable) IsGPT() bool {
	return t != nil && t.Format == GPT
}

// PartitionNode returns the device path of partition index on disk,
// e.g. /dev/sdb + 1 -> /dev/sdb1 and /dev/nvme0n1 + 1 -> /dev/nvme0n1p1.
func PartitionNode(disk string, index int) string {
	if disk == "" {
		return ""
	}
	last := rune(disk[len(disk)-1])
	if unicode.IsDigit(last) {
		return fmt.Sprintf("%sp%d", disk, index)
	}
	return fmt.Sprintf("%s%d", disk, index)
}

// BelongsToDisk returns true if node is disk itself or one of its partitions.
func BelongsToDisk(node, disk string) bool {
	if disk == "" || !strings.HasPrefix(node, disk) {
		return false
	}
	suffix := strings.TrimPrefix(node, disk)
	if suffix == "" {
		return true
	}
	if unicode.IsDigit(rune(disk[len(disk)-1])) {
		if !strings.HasPrefix(suffix, "p") {
			return false
		}
		suffix = suffix[1:]
	}
	if suffix == "" {
		return false
	}
	for _, r := range suffix {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
