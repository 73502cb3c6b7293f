package primitive

import (
	"fmt"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/render"
)

// DHCPNS runs dnsmasq as the DHCP server of a VRF namespace.
type DHCPNS struct {
	Namespace string
	Ranges    []render.DHCPRange
	Hosts     []render.DHCPHost
}

func (d DHCPNS) Name() string { return "dhcpns" }

func (d DHCPNS) Operations() []plan.Operation {
	return []plan.Operation{plan.OpBuild, plan.OpScrub, plan.OpRead}
}

func (d DHCPNS) confPath() string  { return fmt.Sprintf("/etc/netns/%s/dnsmasq.conf", d.Namespace) }
func (d DHCPNS) hostsPath() string { return fmt.Sprintf("/etc/netns/%s/dnsmasq.hosts", d.Namespace) }
func (d DHCPNS) pidPath() string   { return fmt.Sprintf("/etc/netns/%s/dnsmasq.pid", d.Namespace) }

func (d DHCPNS) Validate(op plan.Operation) error {
	if err := validateNamespace(d.Namespace); err != nil {
		return err
	}
	if op == plan.OpBuild && len(d.Ranges) == 0 {
		return inputErr(OffsetField, "at least one DHCP range is required")
	}
	return nil
}

// findProcess prints the PID of the dnsmasq bound to this namespace's
// config, or nothing.
func (d DHCPNS) findProcess() plan.Step {
	return plan.Step{
		Label:   "find_process",
		Command: findProcessCommand("--conf-file=" + d.confPath()),
	}
}

func findProcessCommand(match string) string {
	return fmt.Sprintf("ps auxw | grep -v grep | grep -F -- %s | awk '{print $2}' | head -n 1", plan.Quote(match))
}

func (d DHCPNS) Plan(op plan.Operation) (plan.Plan, error) {
	p := plan.Plan{Primitive: d.Name(), Operation: op, Resource: d.confPath()}
	switch op {
	case plan.OpBuild:
		data := render.Dnsmasq{
			Namespace: d.Namespace,
			PIDFile:   d.pidPath(),
			HostsFile: d.hostsPath(),
			Ranges:    d.Ranges,
			Hosts:     d.Hosts,
		}
		conf, err := render.DnsmasqConf(data)
		if err != nil {
			return plan.Plan{}, &InputError{Offset: OffsetFirstTemplate, Err: fmt.Errorf("failed to render %s: %w", d.confPath(), err)}
		}
		hosts, err := render.DnsmasqHosts(data)
		if err != nil {
			return plan.Plan{}, &InputError{Offset: OffsetSecondTemplate, Err: fmt.Errorf("failed to render %s: %w", d.hostsPath(), err)}
		}
		p.Success = fmt.Sprintf("Successfully created %s and started dnsmasq on both PodNet nodes.", d.confPath())
		p.Steps = []plan.Step{
			d.findProcess(),
			{Label: "create_config", Command: plan.Heredoc(d.confPath(), conf)},
			{Label: "create_hosts", Command: plan.Heredoc(d.hostsPath(), hosts)},
			{
				Label:     "reload_dnsmasq",
				CommandFn: func(o plan.Outputs) string { return "kill -HUP " + o.Stdout("find_process") },
				When:      func(o plan.Outputs) bool { return o.Found("find_process") },
			},
			{
				Label:   "start_dnsmasq",
				Command: fmt.Sprintf("ip netns exec %s dnsmasq --conf-file=%s", d.Namespace, d.confPath()),
				When:    func(o plan.Outputs) bool { return !o.Found("find_process") },
			},
		}
	case plan.OpScrub:
		p.Success = fmt.Sprintf("Successfully removed %s and stopped dnsmasq on both PodNet nodes.", d.confPath())
		p.Steps = []plan.Step{
			d.findProcess(),
			{Label: "delete_config", Command: fmt.Sprintf("rm --force %s %s %s", d.confPath(), d.hostsPath(), d.pidPath())},
			{
				Label:     "stop_dnsmasq",
				CommandFn: func(o plan.Outputs) string { return "kill -TERM " + o.Stdout("find_process") },
				When:      func(o plan.Outputs) bool { return o.Found("find_process") },
			},
		}
	case plan.OpRead:
		p.Steps = []plan.Step{
			{Label: "read_config", Command: "cat " + d.confPath(), Record: "config_file"},
			{Label: "read_hosts", Command: "cat " + d.hostsPath(), Record: "hosts_file"},
			{Label: "read_pidfile", Command: "cat " + d.pidPath(), Record: "pidfile"},
			{Label: "find_process", Command: d.findProcess().Command, Accept: plan.ExitZeroNonEmpty, Record: "process_id"},
		}
	}
	return p, nil
}
