package primitive

import (
	"fmt"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
)

// BridgeIfNS connects a namespace to a main-namespace bridge with a veth
// pair named <bridge>.<namespace> / <namespace>.<bridge>.
type BridgeIfNS struct {
	Namespace string
	Bridge    string
}

func (b BridgeIfNS) Name() string { return "bridgeifns" }

func (b BridgeIfNS) Operations() []plan.Operation {
	return []plan.Operation{plan.OpBuild, plan.OpScrub, plan.OpRead}
}

func (b BridgeIfNS) mainEnd() string { return b.Bridge + "." + b.Namespace }
func (b BridgeIfNS) nsEnd() string   { return b.Namespace + "." + b.Bridge }

func (b BridgeIfNS) Validate(plan.Operation) error {
	if err := validateNamespace(b.Namespace); err != nil {
		return err
	}
	if err := validateIfname("bridge", b.Bridge); err != nil {
		return err
	}
	if len(b.nsEnd()) > maxIfname {
		return inputErr(OffsetField, "interface name %q is longer than %d characters", b.nsEnd(), maxIfname)
	}
	return nil
}

func (b BridgeIfNS) Plan(op plan.Operation) (plan.Plan, error) {
	p := plan.Plan{Primitive: b.Name(), Operation: op, Resource: fmt.Sprintf("%s in namespace %s", b.nsEnd(), b.Namespace)}
	check := plan.Step{
		Label:   "interface_check",
		Command: fmt.Sprintf("ip netns exec %s ip link show dev %s", b.Namespace, b.nsEnd()),
		Accept:  plan.ExitIn(0, 1),
	}
	switch op {
	case plan.OpBuild:
		p.Steps = []plan.Step{
			check,
			{Label: "interface_add", Command: fmt.Sprintf("ip link add %s type veth peer name %s", b.mainEnd(), b.nsEnd()), When: absent("interface_check")},
			{Label: "interface_main", Command: fmt.Sprintf("ip link set dev %s master %s", b.mainEnd(), b.Bridge), When: absent("interface_check")},
			{Label: "interface_ns", Command: fmt.Sprintf("ip link set dev %s netns %s", b.nsEnd(), b.Namespace), When: absent("interface_check")},
			{Label: "interface_up", Command: fmt.Sprintf("ip netns exec %s ip link set dev %s up", b.Namespace, b.nsEnd())},
		}
	case plan.OpScrub:
		p.Steps = []plan.Step{
			check,
			{Label: "interface_del", Command: fmt.Sprintf("ip netns exec %s ip link del %s", b.Namespace, b.nsEnd()), When: present("interface_check")},
		}
	case plan.OpRead:
		p.Steps = []plan.Step{
			{
				Label:   "interface_show",
				Command: fmt.Sprintf("ip netns exec %s ip link show dev %s", b.Namespace, b.nsEnd()),
				Record:  "interface",
			},
		}
	}
	return p, nil
}
