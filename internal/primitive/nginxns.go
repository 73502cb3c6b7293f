package primitive

import (
	"fmt"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/render"
)

// DefaultMetadataListen is where cloud-init looks for its datasource.
var DefaultMetadataListen = []string{"169.254.169.254:80"}

// NginxNS serves cloud-init userdata and metadata from a VRF namespace.
type NginxNS struct {
	Namespace string
	Listen    []string
}

func (n NginxNS) Name() string { return "nginxns" }

func (n NginxNS) Operations() []plan.Operation {
	return []plan.Operation{plan.OpBuild, plan.OpScrub, plan.OpRead}
}

func (n NginxNS) confPath() string { return fmt.Sprintf("/etc/netns/%s/nginx.conf", n.Namespace) }
func (n NginxNS) pidPath() string  { return fmt.Sprintf("/etc/netns/%s/nginx.pid", n.Namespace) }
func (n NginxNS) rootPath() string { return fmt.Sprintf("/etc/netns/%s/cloud-init", n.Namespace) }

func (n NginxNS) Validate(plan.Operation) error {
	return validateNamespace(n.Namespace)
}

func (n NginxNS) findProcess() plan.Step {
	return plan.Step{Label: "find_process", Command: findProcessCommand("nginx -c " + n.confPath())}
}

func (n NginxNS) Plan(op plan.Operation) (plan.Plan, error) {
	p := plan.Plan{Primitive: n.Name(), Operation: op, Resource: n.confPath()}
	switch op {
	case plan.OpBuild:
		listen := n.Listen
		if len(listen) == 0 {
			listen = DefaultMetadataListen
		}
		conf, err := render.NginxConf(render.Nginx{Namespace: n.Namespace, PIDFile: n.pidPath(), Root: n.rootPath(), Listen: listen})
		if err != nil {
			return plan.Plan{}, &InputError{Offset: OffsetFirstTemplate, Err: fmt.Errorf("failed to render %s: %w", n.confPath(), err)}
		}
		p.Success = fmt.Sprintf("Successfully created %s and started nginx on both PodNet nodes.", n.confPath())
		p.Steps = []plan.Step{
			n.findProcess(),
			{Label: "create_config", Command: "mkdir --parents " + n.rootPath() + " && " + plan.Heredoc(n.confPath(), conf)},
			{
				Label:     "reload_nginx",
				CommandFn: func(o plan.Outputs) string { return "kill -HUP " + o.Stdout("find_process") },
				When:      func(o plan.Outputs) bool { return o.Found("find_process") },
			},
			{
				Label:   "start_nginx",
				Command: fmt.Sprintf("ip netns exec %s nginx -c %s", n.Namespace, n.confPath()),
				When:    func(o plan.Outputs) bool { return !o.Found("find_process") },
			},
		}
	case plan.OpScrub:
		p.Success = fmt.Sprintf("Successfully removed %s and stopped nginx on both PodNet nodes.", n.confPath())
		p.Steps = []plan.Step{
			n.findProcess(),
			{Label: "delete_config", Command: fmt.Sprintf("rm --force %s %s", n.confPath(), n.pidPath())},
			{
				Label:     "stop_nginx",
				CommandFn: func(o plan.Outputs) string { return "kill -QUIT " + o.Stdout("find_process") },
				When:      func(o plan.Outputs) bool { return o.Found("find_process") },
			},
		}
	case plan.OpRead:
		p.Steps = []plan.Step{
			{Label: "read_config", Command: "cat " + n.confPath(), Record: "config_file"},
			{Label: "find_process", Command: n.findProcess().Command, Accept: plan.ExitZeroNonEmpty, Record: "process_id"},
		}
	}
	return p, nil
}
