package primitive

import (
	"encoding/json"
	"fmt"
	"path"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
)

const gib = int64(1) << 30

// StorageKVM is a qcow2 disk image on a KVM hypervisor.
type StorageKVM struct {
	HostAddr   string
	DomainPath string
	Storage    string
	SizeGB     int
}

func (s StorageKVM) Name() string { return "storagekvm" }
func (s StorageKVM) Host() string { return s.HostAddr }

func (s StorageKVM) Operations() []plan.Operation {
	return []plan.Operation{plan.OpBuild, plan.OpUpdate, plan.OpScrub, plan.OpRead}
}

func (s StorageKVM) file() string { return path.Join(s.DomainPath, s.Storage) }

func (s StorageKVM) Validate(op plan.Operation) error {
	if err := validateAbsPath("domain_path", s.DomainPath); err != nil {
		return err
	}
	if !filenamePattern.MatchString(s.Storage) || s.Storage == "." || s.Storage == ".." {
		return inputErr(OffsetName, "invalid storage file name %q", s.Storage)
	}
	if (op == plan.OpBuild || op == plan.OpUpdate) && s.SizeGB <= 0 {
		return inputErr(OffsetSize, "size must be a positive number of GB, got %d", s.SizeGB)
	}
	return nil
}

// virtualSize extracts "virtual-size" from `qemu-img info --output=json`.
func virtualSize(stdout string) (int64, bool) {
	var info struct {
		VirtualSize *int64 `json:"virtual-size"`
	}
	if err := json.Unmarshal([]byte(stdout), &info); err != nil || info.VirtualSize == nil {
		return 0, false
	}
	return *info.VirtualSize, true
}

// sameSize accepts an image whose virtual size is the requested one.
func (s StorageKVM) sameSize(status int, stdout string) bool {
	if status != 0 {
		return false
	}
	size, ok := virtualSize(stdout)
	return ok && size == int64(s.SizeGB)*gib
}

func (s StorageKVM) Plan(op plan.Operation) (plan.Plan, error) {
	file := plan.Quote(s.file())
	p := plan.Plan{Primitive: s.Name(), Operation: op, Resource: s.file()}
	info := plan.Step{Label: "read_storage_file", Command: "qemu-img info --output=json " + file}
	switch op {
	case plan.OpBuild:
		info.Accept = s.sameSize
		info.When = present("find_storage_file")
		info.Messages = map[plan.FailureKind]string{
			plan.FailCommand: fmt.Sprintf("storage file {resource} already exists on {node} but is not a readable %dG image. "+
				"Payload exited with status {status}", s.SizeGB),
		}
		p.Steps = []plan.Step{
			{Label: "find_storage_file", Command: "test -e " + file, Accept: plan.ExitIn(0, 1)},
			info,
			{
				Label:   "create_storage_file",
				Command: fmt.Sprintf("qemu-img create -f qcow2 %s %dG", file, s.SizeGB),
				When:    absent("find_storage_file"),
			},
		}
	case plan.OpUpdate:
		p.Steps = []plan.Step{
			info,
			{Label: "resize_storage_file", Command: fmt.Sprintf("qemu-img resize %s %dG", file, s.SizeGB)},
		}
	case plan.OpScrub:
		p.Steps = []plan.Step{{Label: "remove_storage_file", Command: "rm --force " + file}}
	case plan.OpRead:
		info.Record = "info"
		p.Steps = []plan.Step{info}
	}
	return p, nil
}
