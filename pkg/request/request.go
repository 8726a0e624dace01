// Package request decodes the dict-literal arguments handed over by the
// node-management layer into typed requests.
//
// The literals use Python syntax, e.g.
//
//	{'disk_node': '/dev/sdb', 'journals': [1024, 1024]}
//
// which is also a valid YAML flow mapping, so they are decoded strictly
// as YAML: unknown and duplicate keys are rejected, as are values of the
// wrong type. YAML is looser than a Python literal, so strings must be
// quoted and numbers must be integers.
package request

import (
	"fmt"
	"path/filepath"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"
	"sigs.k8s.io/yaml"

	"github.com/starlingx-staging/ceph-manage-journal/pkg/utils"
)

// PartitionsRequest asks for the journal partitions of a disk.
type PartitionsRequest struct {
	DiskNode string
	// Journals holds the partition sizes in MiB, in partition order.
	Journals []int64
}

// LocationRequest asks for the journal of an OSD to live on JournalNode.
type LocationRequest struct {
	DataNode    string
	JournalNode string
	OSDID       int
}

type partitionsLiteral struct {
	DiskNode *string `json:"disk_node"`
	Journals []int64 `json:"journals"`
}

type locationLiteral struct {
	DataNode    *string `json:"data_node"`
	JournalNode *string `json:"journal_node"`
	OSDID       *int    `json:"osdid"`
}

// ParsePartitions decodes the argument of the `partitions` command.
func ParsePartitions(arg string) (*PartitionsRequest, error) {
	var literal partitionsLiteral
	if err := decode(arg, &literal); err != nil {
		return nil, err
	}

	var errs field.ErrorList
	errs = append(errs, validateDevPath(field.NewPath("disk_node"), literal.DiskNode)...)
	journalsPath := field.NewPath("journals")
	switch {
	case literal.Journals == nil:
		errs = append(errs, field.Required(journalsPath, "a list of partition sizes is required"))
	case len(literal.Journals) == 0:
		errs = append(errs, field.Invalid(journalsPath, literal.Journals, "must contain at least one partition size"))
	default:
		for i, size := range literal.Journals {
			if size <= 0 {
				errs = append(errs, field.Invalid(journalsPath.Index(i), size, "must be a positive size in MiB"))
			}
		}
	}
	if len(errs) > 0 {
		return nil, utils.NewUsageError("%s", errs.ToAggregate().Error())
	}

	return &PartitionsRequest{
		DiskNode: *literal.DiskNode,
		Journals: literal.Journals,
	}, nil
}

// ParseLocation decodes the argument of the `location` command.
func ParseLocation(arg string) (*LocationRequest, error) {
	var literal locationLiteral
	if err := decode(arg, &literal); err != nil {
		return nil, err
	}

	var errs field.ErrorList
	errs = append(errs, validateDevPath(field.NewPath("data_node"), literal.DataNode)...)
	errs = append(errs, validateDevPath(field.NewPath("journal_node"), literal.JournalNode)...)
	osdPath := field.NewPath("osdid")
	if literal.OSDID == nil {
		errs = append(errs, field.Required(osdPath, "an integer OSD id is required"))
	} else if *literal.OSDID < 0 {
		errs = append(errs, field.Invalid(osdPath, *literal.OSDID, "must not be negative"))
	}
	if len(errs) > 0 {
		return nil, utils.NewUsageError("%s", errs.ToAggregate().Error())
	}

	return &LocationRequest{
		DataNode:    *literal.DataNode,
		JournalNode: *literal.JournalNode,
		OSDID:       *literal.OSDID,
	}, nil
}

func decode(arg string, out interface{}) error {
	literal := strings.ReplaceAll(arg, `\n`, "\n")
	if strings.TrimSpace(literal) == "" {
		return utils.NewUsageError("empty argument")
	}
	var doc yamlv3.Node
	if err := yamlv3.Unmarshal([]byte(literal), &doc); err != nil {
		return utils.NewUsageError("malformed argument %q: %v", arg, err)
	}
	if err := checkLiteral(&doc); err != nil {
		return utils.NewUsageError("malformed argument %q: %v", arg, err)
	}
	if err := yaml.UnmarshalStrict([]byte(literal), out); err != nil {
		return utils.NewUsageError("malformed argument %q: %v", arg, err)
	}
	return nil
}

// checkLiteral rejects scalars a Python literal cannot express the same
// way: floats (3.0 would otherwise decode as 3), bare words and aliases.
func checkLiteral(node *yamlv3.Node) error {
	switch node.Kind {
	case yamlv3.DocumentNode, yamlv3.SequenceNode, yamlv3.MappingNode:
		for _, child := range node.Content {
			if err := checkLiteral(child); err != nil {
				return err
			}
		}
	case yamlv3.AliasNode:
		return fmt.Errorf("line %d: aliases are not allowed", node.Line)
	case yamlv3.ScalarNode:
		switch node.ShortTag() {
		case "!!float":
			return fmt.Errorf("line %d: %s is not an integer", node.Line, node.Value)
		case "!!str":
			if node.Style&(yamlv3.SingleQuotedStyle|yamlv3.DoubleQuotedStyle) == 0 {
				return fmt.Errorf("line %d: string %s must be quoted", node.Line, node.Value)
			}
		}
	}
	return nil
}

func validateDevPath(path *field.Path, value *string) field.ErrorList {
	if value == nil || *value == "" {
		return field.ErrorList{field.Required(path, "a device path is required")}
	}
	if !filepath.IsAbs(*value) {
		return field.ErrorList{field.Invalid(path, *value, "must be an absolute device path")}
	}
	return nil
}
