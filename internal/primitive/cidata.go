package primitive

import (
	"fmt"
	"path"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/render"
)

// CIData is the cloud-init metadata and userdata of one virtual machine,
// served by nginxns from the namespace's cloud-init root.
type CIData struct {
	// DomainPath is the VM's cloud-init directory, including the metadata
	// version component.
	DomainPath string
	Metadata   map[string]any
	Userdata   string
}

func (c CIData) Name() string { return "cidata" }

func (c CIData) Operations() []plan.Operation {
	return []plan.Operation{plan.OpBuild, plan.OpScrub, plan.OpRead}
}

func (c CIData) metadataPath() string { return path.Join(c.DomainPath, "metadata") }
func (c CIData) userdataPath() string { return path.Join(c.DomainPath, "userdata") }

func (c CIData) Validate(plan.Operation) error {
	return validateAbsPath("domain_path", c.DomainPath)
}

func (c CIData) Plan(op plan.Operation) (plan.Plan, error) {
	p := plan.Plan{Primitive: c.Name(), Operation: op, Resource: c.DomainPath}
	switch op {
	case plan.OpBuild:
		metadata, err := render.Metadata(c.Metadata)
		if err != nil {
			return plan.Plan{}, &InputError{Offset: OffsetFirstTemplate, Err: fmt.Errorf("failed to render %s: %w", c.metadataPath(), err)}
		}
		p.Success = "Successfully created {resource}/metadata and {resource}/userdata on both PodNet nodes."
		p.Steps = []plan.Step{
			{
				Label:   "create_metadata",
				Command: "mkdir --parents " + plan.Quote(c.DomainPath) + " && " + plan.Heredoc(c.metadataPath(), metadata),
			},
			{Label: "create_userdata", Command: plan.Heredoc(c.userdataPath(), c.Userdata)},
		}
	case plan.OpScrub:
		p.Success = "Successfully removed {resource}/metadata and {resource}/userdata on both PodNet nodes."
		p.Steps = []plan.Step{
			{Label: "remove_metadata", Command: "rm --force " + plan.Quote(c.metadataPath())},
			{Label: "remove_userdata", Command: "rm --force " + plan.Quote(c.userdataPath())},
		}
	case plan.OpRead:
		p.Steps = []plan.Step{
			{Label: "read_metadata", Command: "cat " + plan.Quote(c.metadataPath()), Record: "metadata"},
			{Label: "read_userdata", Command: "cat " + plan.Quote(c.userdataPath()), Record: "userdata"},
		}
	}
	return p, nil
}
