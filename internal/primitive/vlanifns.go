package primitive

import (
	"fmt"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
)

// VlanIfNS is a VLAN sub-interface of a PodNet uplink moved into a namespace.
type VlanIfNS struct {
	Namespace string
	Ifname    string
	VLAN      int
}

func (v VlanIfNS) Name() string { return "vlanifns" }

func (v VlanIfNS) Operations() []plan.Operation {
	return []plan.Operation{plan.OpBuild, plan.OpScrub, plan.OpRead}
}

func (v VlanIfNS) vlanif() string { return fmt.Sprintf("%s.%d", v.Ifname, v.VLAN) }

func (v VlanIfNS) Validate(plan.Operation) error {
	if err := validateNamespace(v.Namespace); err != nil {
		return err
	}
	if err := validateIfname("ifname", v.Ifname); err != nil {
		return err
	}
	if v.VLAN < 1 || v.VLAN > 4094 {
		return inputErr(OffsetField, "vlan %d out of range 1-4094", v.VLAN)
	}
	if len(v.vlanif()) > maxIfname {
		return inputErr(OffsetField, "interface name %q is longer than %d characters", v.vlanif(), maxIfname)
	}
	return nil
}

func (v VlanIfNS) Plan(op plan.Operation) (plan.Plan, error) {
	p := plan.Plan{Primitive: v.Name(), Operation: op, Resource: fmt.Sprintf("%s in namespace %s", v.vlanif(), v.Namespace)}
	check := plan.Step{
		Label:   "vlanif_check",
		Command: fmt.Sprintf("ip netns exec %s ip link show %s", v.Namespace, v.vlanif()),
		Accept:  plan.ExitIn(0, 1),
	}
	switch op {
	case plan.OpBuild:
		p.Steps = []plan.Step{
			check,
			{Label: "vlanif_add", Command: fmt.Sprintf("ip link add link %s name %s type vlan id %d", v.Ifname, v.vlanif(), v.VLAN), When: absent("vlanif_check")},
			{Label: "vlanif_ns", Command: fmt.Sprintf("ip link set dev %s netns %s", v.vlanif(), v.Namespace), When: absent("vlanif_check")},
			{Label: "vlanif_up", Command: fmt.Sprintf("ip netns exec %s ip link set dev %s up", v.Namespace, v.vlanif())},
		}
	case plan.OpScrub:
		p.Steps = []plan.Step{
			check,
			{Label: "vlanif_del", Command: fmt.Sprintf("ip netns exec %s ip link del %s", v.Namespace, v.vlanif()), When: present("vlanif_check")},
		}
	case plan.OpRead:
		p.Steps = []plan.Step{
			{Label: "read_vlanif", Command: check.Command, Record: "vlanif"},
		}
	}
	return p, nil
}
