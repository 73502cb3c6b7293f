package primitive

import (
	"fmt"
	"net/netip"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
)

// NS is a VRF network namespace with forwarding enabled and a lo1 dummy
// interface carrying the namespace's loopback address.
type NS struct {
	Namespace string
	LoAddr    string
}

func (n NS) Name() string { return "ns" }

func (n NS) Operations() []plan.Operation {
	return []plan.Operation{plan.OpBuild, plan.OpScrub, plan.OpRead}
}

func (n NS) Validate(op plan.Operation) error {
	if err := validateNamespace(n.Namespace); err != nil {
		return err
	}
	if op == plan.OpScrub {
		return nil
	}
	if _, err := netip.ParsePrefix(n.LoAddr); err != nil {
		return inputErr(OffsetField, "invalid lo1 address %q: want an address with prefix length, e.g. fd00::1/128", n.LoAddr)
	}
	return nil
}

func (n NS) exec(cmd string) string {
	return fmt.Sprintf("ip netns exec %s %s", n.Namespace, cmd)
}

func (n NS) findNamespace(accept plan.Predicate, record string) plan.Step {
	return plan.Step{
		Label:   "find_namespace",
		Command: fmt.Sprintf("ip netns list | awk '{print $1}' | grep --line-regexp --fixed-strings -- %s", plan.Quote(n.Namespace)),
		Accept:  accept,
		Record:  record,
	}
}

func (n NS) findLo1Address(accept plan.Predicate, record string) plan.Step {
	return plan.Step{
		Label:   "find_lo1_address",
		Command: n.exec("ip -o addr show dev lo1 | awk '{print $4}' | grep --line-regexp --fixed-strings -- " + plan.Quote(n.LoAddr)),
		Accept:  accept,
		Record:  record,
	}
}

func absent(label string) func(plan.Outputs) bool {
	return func(o plan.Outputs) bool { return !o.Exited(label, 0) }
}

func present(label string) func(plan.Outputs) bool {
	return func(o plan.Outputs) bool { return o.Exited(label, 0) }
}

func (n NS) Plan(op plan.Operation) (plan.Plan, error) {
	p := plan.Plan{Primitive: n.Name(), Operation: op, Resource: "namespace " + n.Namespace}
	probe := plan.ExitIn(0, 1)
	switch op {
	case plan.OpBuild:
		p.Steps = []plan.Step{
			n.findNamespace(probe, ""),
			{Label: "create_namespace", Command: "ip netns add " + n.Namespace, When: absent("find_namespace")},
			{Label: "enable_forwardv4", Command: n.exec("sysctl --write net.ipv4.ip_forward=1")},
			{Label: "enable_forwardv6", Command: n.exec("sysctl --write net.ipv6.conf.all.forwarding=1")},
			{Label: "enable_lo", Command: n.exec("ip link set dev lo up")},
			{Label: "find_lo1", Command: n.exec("ip link show lo1"), Accept: probe},
			{Label: "create_lo1", Command: n.exec("ip link add lo1 type dummy"), When: absent("find_lo1")},
			n.findLo1Address(probe, ""),
			{Label: "create_lo1_address", Command: n.exec("ip addr add " + n.LoAddr + " dev lo1"), When: absent("find_lo1_address")},
			{Label: "enable_lo1", Command: n.exec("ip link set dev lo1 up")},
		}
	case plan.OpScrub:
		p.Steps = []plan.Step{
			n.findNamespace(probe, ""),
			{Label: "delete_namespace", Command: "ip netns delete " + n.Namespace, When: present("find_namespace")},
		}
	case plan.OpRead:
		p.Steps = []plan.Step{
			n.findNamespace(plan.ExitZero, "namespace"),
			{Label: "find_forwardv4", Command: n.exec("sysctl -n net.ipv4.ip_forward"), Record: "forwardv4"},
			{Label: "find_forwardv6", Command: n.exec("sysctl -n net.ipv6.conf.all.forwarding"), Record: "forwardv6"},
			{Label: "find_lo_status", Command: n.exec("ip link show lo | grep UP,LOWER_UP"), Record: "lo_status"},
			{Label: "find_lo1", Command: n.exec("ip link show lo1"), Record: "lo1"},
			{Label: "find_lo1_status", Command: n.exec("ip link show lo1 | grep UP,LOWER_UP"), Record: "lo1_status"},
			n.findLo1Address(plan.ExitZero, "lo1_address"),
		}
	}
	return p, nil
}
