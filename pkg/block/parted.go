package block

import (
	"bufio"
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
)

const (
	PartedCmd = "parted"

	// UnitMiB is the parted unit journal sizes are expressed in.
	UnitMiB = "MiB"
)

var partitionTableRegexp = regexp.MustCompile(`(?m)^Partition Table:\s*(\S+)`)

// ReadPartitionTable dumps the partition table of disk. An unreadable or
// missing label is not an error, it shows up as a non-GPT format.
func ReadPartitionTable(ctx context.Context, executor utils.Executor, disk string) (*PartitionTable, error) {
	result, err := executor.Run(ctx, PartedCmd, "-s", disk, "print")
	if err != nil {
		return nil, err
	}
	return ParsePartitionTable(result.Stdout), nil
}

// ReadDiskSize runs the MiB print of a single device, returning the raw dump.
func ReadDiskSize(ctx context.Context, executor utils.Executor, node string) (string, error) {
	result, err := executor.Run(ctx, PartedCmd, "-s", node, "unit", UnitMiB, "print")
	if err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// ParsePartitionTable parses the output of `parted -s <disk> print`:
//
//	Model: ATA QEMU HARDDISK (scsi)
//	Disk /dev/sdb: 10.7GB
//	Sector size (logical/physical): 512B/512B
//	Partition Table: gpt
//	Disk Flags:
//
//	Number  Start   End     Size    File system  Name     Flags
//	 1      1049kB  211MB   210MB                primary
func ParsePartitionTable(output string) *PartitionTable {
	table := &PartitionTable{}
	if m := partitionTableRegexp.FindStringSubmatch(output); m != nil {
		table.Format = strings.ToLower(m[1])
	}

	inRows := false
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "Number" {
			inRows = true
			continue
		}
		if !inRows || len(fields) < 4 {
			continue
		}
		number, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		table.Partitions = append(table.Partitions, Partition{
			Number: number,
			Start:  fields[1],
			End:    fields[2],
			Size:   fields[3],
		})
	}
	return table
}

// ParseDiskSizeMiB extracts the size reported on the `Disk <node>: ...MiB`
// line of `parted -s <node> unit MiB print`. The size is returned as the
// integral part plus whether the fractional part was all zeros.
func ParseDiskSizeMiB(output, node string) (size int64, whole bool, found bool) {
	re := regexp.MustCompile(`(?m)^Disk ` + regexp.QuoteMeta(node) + `:\s*([0-9]+)(?:\.([0-9]*))?MiB`)
	m := re.FindStringSubmatch(output)
	if m == nil {
		return 0, false, false
	}
	size, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false, false
	}
	return size, strings.Trim(m[2], "0") == "", true
}

// SizeMatches returns true if the MiB dump reports node as exactly sizeMiB.
// Trailing zero decimals ("100.0MiB") are accepted, anything else is not.
func SizeMatches(output, node string, sizeMiB int64) bool {
	size, whole, found := ParseDiskSizeMiB(output, node)
	return found && whole && size == sizeMiB
}
