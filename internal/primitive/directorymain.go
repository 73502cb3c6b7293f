package primitive

import (
	"github.com/Bibi40k/podnet-primitives/internal/plan"
)

// DirectoryMain is a directory in the main namespace of both PodNet nodes.
type DirectoryMain struct {
	Path string
}

func (d DirectoryMain) Name() string { return "directorymain" }

func (d DirectoryMain) Operations() []plan.Operation {
	return []plan.Operation{plan.OpBuild, plan.OpScrub, plan.OpRead}
}

func (d DirectoryMain) Validate(plan.Operation) error {
	return validateAbsPath("path", d.Path)
}

func (d DirectoryMain) Plan(op plan.Operation) (plan.Plan, error) {
	p := plan.Plan{Primitive: d.Name(), Operation: op, Resource: d.Path}
	quoted := plan.Quote(d.Path)
	switch op {
	case plan.OpBuild:
		p.Steps = []plan.Step{{Label: "create_path", Command: "mkdir --parents " + quoted}}
	case plan.OpScrub:
		p.Steps = []plan.Step{{Label: "delete_directory", Command: "rm --recursive --force " + quoted}}
	case plan.OpRead:
		p.Steps = []plan.Step{{Label: "find_path", Command: "stat " + quoted, Record: "stat"}}
	}
	return p, nil
}
