package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/primitive"
	"github.com/Bibi40k/podnet-primitives/internal/render"
)

// binder registers a primitive's flags on cmd and returns a constructor that
// reads them once the command runs.
type binder func(cmd *cobra.Command) func() (primitive.Primitive, error)

type primitiveDef struct {
	use   string
	short string
	ops   []plan.Operation
	bind  binder
}

var opShort = map[plan.Operation]string{
	plan.OpBuild:  "Create or converge",
	plan.OpScrub:  "Remove",
	plan.OpRead:   "Read the state of",
	plan.OpUpdate: "Update",
}

func primitiveDefs() []primitiveDef {
	podnetOps := []plan.Operation{plan.OpBuild, plan.OpScrub, plan.OpRead}
	return []primitiveDef{
		{use: "dhcp-ns", short: "dnsmasq DHCP server in a VRF namespace", ops: podnetOps, bind: bindDHCPNS},
		{use: "nginx-ns", short: "nginx cloud-init metadata server in a VRF namespace", ops: podnetOps, bind: bindNginxNS},
		{use: "ns", short: "VRF network namespace", ops: podnetOps, bind: bindNS},
		{use: "vlanif-ns", short: "VLAN interface moved into a namespace", ops: podnetOps, bind: bindVlanIfNS},
		{use: "bridgeif-ns", short: "veth pair between a bridge and a namespace", ops: podnetOps, bind: bindBridgeIfNS},
		{use: "directory-main", short: "directory on both PodNet nodes", ops: podnetOps, bind: bindDirectoryMain},
		{use: "cidata", short: "cloud-init metadata and userdata of a VM", ops: podnetOps, bind: bindCIData},
		{
			use:   "storage-kvm",
			short: "qcow2 storage file on a KVM host",
			ops:   []plan.Operation{plan.OpBuild, plan.OpUpdate, plan.OpScrub, plan.OpRead},
			bind:  bindStorageKVM,
		},
	}
}

func primitiveCommands() []*cobra.Command {
	var cmds []*cobra.Command
	for _, def := range primitiveDefs() {
		parent := &cobra.Command{Use: def.use, Short: def.short}
		for _, op := range def.ops {
			parent.AddCommand(newOperationCmd(def, op))
		}
		cmds = append(cmds, parent)
	}
	return cmds
}

func newOperationCmd(def primitiveDef, op plan.Operation) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   string(op),
		Short: fmt.Sprintf("%s the %s", opShort[op], def.short),
		Args:  cobra.NoArgs,
	}
	build := def.bind(cmd)
	if op == plan.OpScrub {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	}
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		p, err := build()
		if err != nil {
			return err
		}
		if op == plan.OpScrub {
			if err := confirmScrub(describe(p), yes); err != nil {
				return err
			}
		}
		a, err := newApp(cmd.OutOrStdout())
		if err != nil {
			return err
		}
		return a.run(cmd.Context(), cmd.OutOrStdout(), p, op)
	}
	return cmd
}

func describe(p primitive.Primitive) string {
	switch v := p.(type) {
	case primitive.DHCPNS:
		return "dnsmasq in namespace " + v.Namespace
	case primitive.NginxNS:
		return "nginx in namespace " + v.Namespace
	case primitive.NS:
		return "namespace " + v.Namespace
	case primitive.VlanIfNS:
		return fmt.Sprintf("VLAN interface %s.%d in namespace %s", v.Ifname, v.VLAN, v.Namespace)
	case primitive.BridgeIfNS:
		return fmt.Sprintf("veth pair %s/%s", v.Bridge, v.Namespace)
	case primitive.DirectoryMain:
		return "directory " + v.Path
	case primitive.CIData:
		return "cloud-init data in " + v.DomainPath
	case primitive.StorageKVM:
		return fmt.Sprintf("storage %s/%s on %s", v.DomainPath, v.Storage, v.HostAddr)
	}
	return p.Name()
}

func bindDHCPNS(cmd *cobra.Command) func() (primitive.Primitive, error) {
	var (
		ns     string
		ranges []string
		hosts  []string
	)
	cmd.Flags().StringVar(&ns, "namespace", "", "VRF namespace name")
	cmd.Flags().StringArrayVar(&ranges, "range", nil, "DHCP range start,end[,mask],lease (repeatable)")
	cmd.Flags().StringArrayVar(&hosts, "dhcp-host", nil, "Static lease mac,ip[,hostname] (repeatable)")
	return func() (primitive.Primitive, error) {
		d := primitive.DHCPNS{Namespace: ns}
		for _, raw := range ranges {
			r, err := parseRange(raw)
			if err != nil {
				return nil, err
			}
			d.Ranges = append(d.Ranges, r)
		}
		for _, raw := range hosts {
			h, err := parseDHCPHost(raw)
			if err != nil {
				return nil, err
			}
			d.Hosts = append(d.Hosts, h)
		}
		return d, nil
	}
}

func parseRange(raw string) (render.DHCPRange, error) {
	parts := splitList(raw)
	switch len(parts) {
	case 3:
		return render.DHCPRange{Start: parts[0], End: parts[1], LeaseTime: parts[2]}, nil
	case 4:
		return render.DHCPRange{Start: parts[0], End: parts[1], Mask: parts[2], LeaseTime: parts[3]}, nil
	}
	return render.DHCPRange{}, &userError{
		msg:  fmt.Sprintf("invalid --range %q", raw),
		hint: "Use start,end,lease or start,end,mask,lease, e.g. 10.0.0.10,10.0.0.100,255.255.255.0,12h",
	}
}

func parseDHCPHost(raw string) (render.DHCPHost, error) {
	parts := splitList(raw)
	switch len(parts) {
	case 2:
		return render.DHCPHost{MAC: parts[0], IP: parts[1]}, nil
	case 3:
		return render.DHCPHost{MAC: parts[0], IP: parts[1], Hostname: parts[2]}, nil
	}
	return render.DHCPHost{}, &userError{
		msg:  fmt.Sprintf("invalid --dhcp-host %q", raw),
		hint: "Use mac,ip or mac,ip,hostname, e.g. 52:54:00:12:34:56,10.0.0.11,vm1",
	}
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func bindNginxNS(cmd *cobra.Command) func() (primitive.Primitive, error) {
	var (
		ns     string
		listen []string
	)
	cmd.Flags().StringVar(&ns, "namespace", "", "VRF namespace name")
	cmd.Flags().StringSliceVar(&listen, "listen", nil, "nginx listen address (default 169.254.169.254:80)")
	return func() (primitive.Primitive, error) {
		return primitive.NginxNS{Namespace: ns, Listen: listen}, nil
	}
}

func bindNS(cmd *cobra.Command) func() (primitive.Primitive, error) {
	var ns, lo string
	cmd.Flags().StringVar(&ns, "namespace", "", "VRF namespace name")
	cmd.Flags().StringVar(&lo, "lo-addr", "", "Address with prefix length for lo1, e.g. fd00::1/128")
	return func() (primitive.Primitive, error) {
		return primitive.NS{Namespace: ns, LoAddr: lo}, nil
	}
}

func bindVlanIfNS(cmd *cobra.Command) func() (primitive.Primitive, error) {
	var (
		ns, ifname string
		vlan       int
	)
	cmd.Flags().StringVar(&ns, "namespace", "", "VRF namespace name")
	cmd.Flags().StringVar(&ifname, "ifname", "", "Parent interface on the PodNet node")
	cmd.Flags().IntVar(&vlan, "vlan", 0, "VLAN ID (1-4094)")
	return func() (primitive.Primitive, error) {
		return primitive.VlanIfNS{Namespace: ns, Ifname: ifname, VLAN: vlan}, nil
	}
}

func bindBridgeIfNS(cmd *cobra.Command) func() (primitive.Primitive, error) {
	var ns, bridge string
	cmd.Flags().StringVar(&ns, "namespace", "", "VRF namespace name")
	cmd.Flags().StringVar(&bridge, "bridge", "", "Bridge in the main namespace")
	return func() (primitive.Primitive, error) {
		return primitive.BridgeIfNS{Namespace: ns, Bridge: bridge}, nil
	}
}

func bindDirectoryMain(cmd *cobra.Command) func() (primitive.Primitive, error) {
	var path string
	cmd.Flags().StringVar(&path, "path", "", "Absolute directory path")
	return func() (primitive.Primitive, error) {
		return primitive.DirectoryMain{Path: path}, nil
	}
}

func bindCIData(cmd *cobra.Command) func() (primitive.Primitive, error) {
	var domainPath, metadataFile, userdataFile string
	cmd.Flags().StringVar(&domainPath, "domain-path", "", "VM cloud-init directory, e.g. /etc/netns/ns1100/cloud-init/123_456/v1")
	cmd.Flags().StringVar(&metadataFile, "metadata-file", "", "YAML or JSON file with the VM metadata (build)")
	cmd.Flags().StringVar(&userdataFile, "userdata-file", "", "cloud-config userdata file (build)")
	return func() (primitive.Primitive, error) {
		c := primitive.CIData{DomainPath: domainPath}
		if metadataFile != "" {
			raw, err := os.ReadFile(metadataFile)
			if err != nil {
				return nil, &userError{msg: err.Error(), hint: "Check --metadata-file"}
			}
			if err := yaml.Unmarshal(raw, &c.Metadata); err != nil {
				return nil, &userError{msg: fmt.Sprintf("parse %s: %v", metadataFile, err), hint: "Metadata must be a YAML or JSON object"}
			}
		}
		if userdataFile != "" {
			raw, err := os.ReadFile(userdataFile)
			if err != nil {
				return nil, &userError{msg: err.Error(), hint: "Check --userdata-file"}
			}
			c.Userdata = string(raw)
		}
		return c, nil
	}
}

func bindStorageKVM(cmd *cobra.Command) func() (primitive.Primitive, error) {
	var (
		host, domainPath, storage string
		size                      int
	)
	cmd.Flags().StringVar(&host, "host", "", "KVM host address")
	cmd.Flags().StringVar(&domainPath, "domain-path", "", "Directory holding the domain's storage")
	cmd.Flags().StringVar(&storage, "storage", "", "Storage file name, e.g. vm1_disk0.qcow2")
	cmd.Flags().IntVar(&size, "size", 0, "Size in GB (build, update)")
	return func() (primitive.Primitive, error) {
		return primitive.StorageKVM{HostAddr: host, DomainPath: domainPath, Storage: storage, SizeGB: size}, nil
	}
}
