package primitive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Bibi40k/podnet-primitives/internal/orchestrator"
	"github.com/Bibi40k/podnet-primitives/internal/plan"
	"github.com/Bibi40k/podnet-primitives/internal/podnet"
	"github.com/Bibi40k/podnet-primitives/internal/render"
	"github.com/Bibi40k/podnet-primitives/internal/ssh"
)

const (
	nodeA = "2001:db8::10:0:2"
	nodeB = "2001:db8::10:0:3"
)

type call struct{ host, command string }

type scriptedExec struct {
	mu      sync.Mutex
	calls   []call
	respond func(host, command string) (ssh.Result, error)
}

func (s *scriptedExec) Execute(_ context.Context, host, command string) (ssh.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{host, command})
	s.mu.Unlock()
	if s.respond == nil {
		return ssh.Result{}, nil
	}
	return s.respond(host, command)
}

func (s *scriptedExec) on(host string) []string {
	var out []string
	for _, c := range s.calls {
		if c.host == host {
			out = append(out, c.command)
		}
	}
	return out
}

func newRunner(t *testing.T, exec orchestrator.Executor, configBody string) *Runner {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if configBody != "" {
		require.NoError(t, os.WriteFile(path, []byte(configBody), 0o600))
	}
	o := orchestrator.New(exec, nil, orchestrator.Options{ConfigFile: path})
	return NewRunner(o, path, nil)
}

const activeA = `{"ipv6_subnet": "2001:db8::/32", "podnet_a_enabled": true, "podnet_b_enabled": false}`

func sampleDHCP() DHCPNS {
	return DHCPNS{
		Namespace: "ns1100",
		Ranges:    []render.DHCPRange{{Start: "10.0.0.10", End: "10.0.0.100", Mask: "255.255.255.0", LeaseTime: "12h"}},
		Hosts:     []render.DHCPHost{{MAC: "52:54:00:00:00:01", IP: "10.0.0.11", Hostname: "vm1"}},
	}
}

func sampleCIData() CIData {
	return CIData{
		DomainPath: "/etc/netns/ns1100/cloud-init/123_456/v1",
		Metadata: map[string]any{
			"instance_id": "123_456",
			"network": map[string]any{
				"nameservers": map[string]any{"addresses": []any{"8.8.8.8"}},
				"interfaces": []any{map[string]any{
					"mac_address": "52:54:00:aa:bb:cc",
					"addresses":   []any{"10.0.5.221/24"},
				}},
			},
		},
		Userdata: "#cloud-config\nruncmd:\n  - echo PODNET_EOF\nPODNET_EOF\n",
	}
}

func labels(p plan.Plan) []string {
	var out []string
	for _, s := range p.Steps {
		out = append(out, s.Label)
	}
	return out
}

func TestPlansAreValidForEveryOperation(t *testing.T) {
	prims := []Primitive{
		sampleDHCP(),
		NginxNS{Namespace: "ns1100"},
		NS{Namespace: "ns1100", LoAddr: "fd00::1/128"},
		VlanIfNS{Namespace: "ns1100", Ifname: "bond0", VLAN: 1100},
		BridgeIfNS{Namespace: "ns1100", Bridge: "br1"},
		DirectoryMain{Path: "/srv/cloud-init/ns1100"},
		sampleCIData(),
		StorageKVM{HostAddr: "kvm1", DomainPath: "/var/lib/kvm/vm1", Storage: "vm1_disk0.qcow2", SizeGB: 20},
	}
	for _, p := range prims {
		for _, op := range p.Operations() {
			t.Run(p.Name()+"/"+string(op), func(t *testing.T) {
				require.NoError(t, p.Validate(op))
				pl, err := p.Plan(op)
				require.NoError(t, err)
				require.NoError(t, pl.Validate())
				assert.Equal(t, op, pl.Operation)
				assert.Equal(t, p.Name(), pl.Primitive)
				if op == plan.OpRead {
					assert.NotEmpty(t, pl.RecordFields())
				}
			})
		}
	}
}

func TestStepLabels(t *testing.T) {
	cases := []struct {
		p    Primitive
		op   plan.Operation
		want []string
	}{
		{sampleDHCP(), plan.OpBuild, []string{"find_process", "create_config", "create_hosts", "reload_dnsmasq", "start_dnsmasq"}},
		{sampleDHCP(), plan.OpScrub, []string{"find_process", "delete_config", "stop_dnsmasq"}},
		{sampleDHCP(), plan.OpRead, []string{"read_config", "read_hosts", "read_pidfile", "find_process"}},
		{NginxNS{Namespace: "n"}, plan.OpBuild, []string{"find_process", "create_config", "reload_nginx", "start_nginx"}},
		{NginxNS{Namespace: "n"}, plan.OpRead, []string{"read_config", "find_process"}},
		{NS{Namespace: "n", LoAddr: "fd00::1/128"}, plan.OpBuild, []string{"find_namespace", "create_namespace", "enable_forwardv4", "enable_forwardv6", "enable_lo", "find_lo1", "create_lo1", "find_lo1_address", "create_lo1_address", "enable_lo1"}},
		{NS{Namespace: "n"}, plan.OpScrub, []string{"find_namespace", "delete_namespace"}},
		{NS{Namespace: "n", LoAddr: "fd00::1/128"}, plan.OpRead, []string{"find_namespace", "find_forwardv4", "find_forwardv6", "find_lo_status", "find_lo1", "find_lo1_status", "find_lo1_address"}},
		{VlanIfNS{Namespace: "n", Ifname: "bond0", VLAN: 10}, plan.OpBuild, []string{"vlanif_check", "vlanif_add", "vlanif_ns", "vlanif_up"}},
		{VlanIfNS{Namespace: "n", Ifname: "bond0", VLAN: 10}, plan.OpScrub, []string{"vlanif_check", "vlanif_del"}},
		{BridgeIfNS{Namespace: "n", Bridge: "br1"}, plan.OpBuild, []string{"interface_check", "interface_add", "interface_main", "interface_ns", "interface_up"}},
		{BridgeIfNS{Namespace: "n", Bridge: "br1"}, plan.OpRead, []string{"interface_show"}},
		{DirectoryMain{Path: "/srv/x"}, plan.OpScrub, []string{"delete_directory"}},
		{StorageKVM{HostAddr: "h", DomainPath: "/var/lib/kvm", Storage: "d.qcow2", SizeGB: 1}, plan.OpBuild, []string{"find_storage_file", "read_storage_file", "create_storage_file"}},
		{sampleCIData(), plan.OpBuild, []string{"create_metadata", "create_userdata"}},
		{sampleCIData(), plan.OpScrub, []string{"remove_metadata", "remove_userdata"}},
		{sampleCIData(), plan.OpRead, []string{"read_metadata", "read_userdata"}},
		{StorageKVM{HostAddr: "h", DomainPath: "/var/lib/kvm", Storage: "d.qcow2", SizeGB: 1}, plan.OpUpdate, []string{"read_storage_file", "resize_storage_file"}},
	}
	for _, tc := range cases {
		pl, err := tc.p.Plan(tc.op)
		require.NoError(t, err)
		assert.Equal(t, tc.want, labels(pl), "%s %s", tc.p.Name(), tc.op)
	}
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name   string
		p      Primitive
		op     plan.Operation
		offset int
	}{
		{"namespace too long", NginxNS{Namespace: "a-very-long-namespace"}, plan.OpBuild, OffsetName},
		{"namespace shell chars", DHCPNS{Namespace: "ns;rm"}, plan.OpRead, OffsetName},
		{"no dhcp ranges", DHCPNS{Namespace: "ns1"}, plan.OpBuild, OffsetField},
		{"bad lo addr", NS{Namespace: "ns1", LoAddr: "fd00::1"}, plan.OpBuild, OffsetField},
		{"vlan zero", VlanIfNS{Namespace: "ns1", Ifname: "bond0", VLAN: 0}, plan.OpBuild, OffsetField},
		{"vlan too big", VlanIfNS{Namespace: "ns1", Ifname: "bond0", VLAN: 4095}, plan.OpBuild, OffsetField},
		{"vlanif too long", VlanIfNS{Namespace: "ns1", Ifname: "enp129s0f1np1", VLAN: 1000}, plan.OpBuild, OffsetField},
		{"veth too long", BridgeIfNS{Namespace: "ns1100", Bridge: "br-public1"}, plan.OpBuild, OffsetField},
		{"relative path", DirectoryMain{Path: "srv/x"}, plan.OpBuild, OffsetPath},
		{"root path", DirectoryMain{Path: "/"}, plan.OpScrub, OffsetPath},
		{"dotdot path", DirectoryMain{Path: "/srv/../etc"}, plan.OpScrub, OffsetPath},
		{"cidata relative", CIData{DomainPath: "cloud-init/vm1"}, plan.OpScrub, OffsetPath},
		{"storage slash", StorageKVM{HostAddr: "h", DomainPath: "/var/lib/kvm", Storage: "../d", SizeGB: 1}, plan.OpBuild, OffsetName},
		{"zero size", StorageKVM{HostAddr: "h", DomainPath: "/var/lib/kvm", Storage: "d.qcow2"}, plan.OpUpdate, OffsetSize},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.p.Validate(tc.op)
			var ie *InputError
			require.True(t, errors.As(err, &ie), "expected InputError, got %v", err)
			assert.Equal(t, tc.offset, ie.Offset)
		})
	}
	assert.NoError(t, NS{Namespace: "ns1"}.Validate(plan.OpScrub))
	assert.NoError(t, StorageKVM{HostAddr: "h", DomainPath: "/var/lib/kvm/", Storage: "d.qcow2"}.Validate(plan.OpScrub))
}

func TestRunDHCPBuildOnBothNodes(t *testing.T) {
	exec := &scriptedExec{respond: func(host, command string) (ssh.Result, error) {
		if strings.HasPrefix(command, "ps auxw") && host == nodeB {
			return ssh.Result{Stdout: "777\n"}, nil
		}
		return ssh.Result{}, nil
	}}
	r := newRunner(t, exec, activeA)

	rep := r.Run(context.Background(), sampleDHCP(), plan.OpBuild)

	ok, msgs := rep.BuildResult()
	require.True(t, ok, msgs)
	assert.Equal(t, []string{"1000: Successfully created /etc/netns/ns1100/dnsmasq.conf and started dnsmasq on both PodNet nodes."}, msgs)

	a := exec.on(nodeA)
	require.Len(t, a, 4)
	assert.Contains(t, a[1], "tee /etc/netns/ns1100/dnsmasq.conf <<'PODNET_EOF'")
	assert.Contains(t, a[1], "dhcp-range=10.0.0.10,10.0.0.100,255.255.255.0,12h")
	assert.Contains(t, a[2], "52:54:00:00:00:01,10.0.0.11,vm1")
	assert.Equal(t, "ip netns exec ns1100 dnsmasq --conf-file=/etc/netns/ns1100/dnsmasq.conf", a[3])

	b := exec.on(nodeB)
	require.Len(t, b, 4)
	assert.Equal(t, "kill -HUP 777", b[3])
}

func TestRunRefusesBeforeAnyRemoteCall(t *testing.T) {
	exec := &scriptedExec{}

	r := newRunner(t, exec, `{"ipv6_subnet": "2001:db8::/32", "podnet_a_enabled": true, "podnet_b_enabled": true}`)
	rep := r.Run(context.Background(), sampleDHCP(), plan.OpBuild)
	assert.False(t, rep.Success)
	require.Len(t, rep.Messages, 1)
	assert.True(t, strings.HasPrefix(rep.Messages[0], "3017: "), rep.Messages[0])
	assert.ErrorIs(t, rep.Err(), podnet.ErrBothEnabled)

	r = newRunner(t, exec, "")
	rep = r.Run(context.Background(), sampleDHCP(), plan.OpRead)
	assert.True(t, strings.HasPrefix(rep.Messages[0], "3211: "), rep.Messages[0])
	assert.Nil(t, rep.Data)

	r = newRunner(t, exec, activeA)
	rep = r.Run(context.Background(), DHCPNS{Namespace: "bad name"}, plan.OpScrub)
	assert.True(t, strings.HasPrefix(rep.Messages[0], "3103: invalid namespace"), rep.Messages[0])

	bad := sampleDHCP()
	bad.Hosts[0].MAC = "zz"
	rep = r.Run(context.Background(), bad, plan.OpBuild)
	assert.True(t, strings.HasPrefix(rep.Messages[0], "3001: failed to render /etc/netns/ns1100/dnsmasq.conf"), rep.Messages[0])

	rep = r.Run(context.Background(), DirectoryMain{Path: "/srv/x"}, plan.OpUpdate)
	assert.True(t, strings.HasPrefix(rep.Messages[0], "3308: directorymain does not support update"), rep.Messages[0])

	assert.Empty(t, exec.calls)
}

func TestRunReadCollectsBothNodes(t *testing.T) {
	exec := &scriptedExec{respond: func(host, command string) (ssh.Result, error) {
		if host == nodeB {
			return ssh.Result{}, &ssh.ConnectError{Host: host, Op: "dial", Err: errors.New("no route to host")}
		}
		return ssh.Result{Stdout: "drwxr-xr-x\n"}, nil
	}}
	r := newRunner(t, exec, activeA)

	rep := r.Run(context.Background(), DirectoryMain{Path: "/srv/x"}, plan.OpRead)

	ok, data, msgs := rep.ReadResult()
	assert.False(t, ok)
	require.Len(t, msgs, 1)
	assert.True(t, strings.HasPrefix(msgs[0], "3261: Failed to connect to the disabled PodNet "+nodeB), msgs[0])
	v, found := rep.Value(nodeA, "stat")
	assert.True(t, found)
	assert.Equal(t, "drwxr-xr-x", v)
	assert.Nil(t, data[nodeB]["stat"])
}

func TestRunNSBuildSkipsExisting(t *testing.T) {
	exec := &scriptedExec{respond: func(_, command string) (ssh.Result, error) {
		switch {
		case strings.HasPrefix(command, "ip netns list"):
			return ssh.Result{Stdout: "ns1100 (id: 3)\n"}, nil
		case strings.HasSuffix(command, "ip link show lo1"):
			return ssh.Result{Status: 1, Stderr: "Device \"lo1\" does not exist."}, nil
		case strings.Contains(command, "addr show dev lo1"):
			return ssh.Result{Status: 1}, nil
		}
		return ssh.Result{}, nil
	}}
	r := newRunner(t, exec, activeA)

	rep := r.Run(context.Background(), NS{Namespace: "ns1100", LoAddr: "fd00::1/128"}, plan.OpBuild)
	require.True(t, rep.Success, rep.Messages)

	a := exec.on(nodeA)
	assert.NotContains(t, a, "ip netns add ns1100")
	assert.Contains(t, a, "ip netns exec ns1100 ip link add lo1 type dummy")
	assert.Contains(t, a, "ip netns exec ns1100 ip addr add fd00::1/128 dev lo1")
}

func TestRunStorageBuildSizeMismatch(t *testing.T) {
	exec := &scriptedExec{respond: func(_, command string) (ssh.Result, error) {
		if strings.HasPrefix(command, "test -e") {
			return ssh.Result{}, nil
		}
		return ssh.Result{Stdout: `{"virtual-size": 10737418240, "format": "qcow2"}`}, nil
	}}
	r := newRunner(t, exec, "")

	rep := r.RunHost(context.Background(), StorageKVM{HostAddr: "kvm1", DomainPath: "/var/lib/kvm", Storage: "d.qcow2", SizeGB: 20}, plan.OpBuild)

	assert.False(t, rep.Success)
	require.Len(t, rep.Messages, 1)
	assert.True(t, strings.HasPrefix(rep.Messages[0], "3024: Storage file /var/lib/kvm/d.qcow2 already exists on the host kvm1 but is not a readable 20G image."), rep.Messages[0])
	assert.Len(t, exec.calls, 2)
}

func TestRunStorageBuildCreatesWhenAbsent(t *testing.T) {
	exec := &scriptedExec{respond: func(_, command string) (ssh.Result, error) {
		if strings.HasPrefix(command, "test -e") {
			return ssh.Result{Status: 1}, nil
		}
		return ssh.Result{}, nil
	}}
	r := newRunner(t, exec, "")

	rep := r.RunHost(context.Background(), StorageKVM{HostAddr: "kvm1", DomainPath: "/var/lib/kvm", Storage: "d.qcow2", SizeGB: 20}, plan.OpBuild)

	require.True(t, rep.Success, rep.Messages)
	assert.Equal(t, []string{"test -e /var/lib/kvm/d.qcow2", "qemu-img create -f qcow2 /var/lib/kvm/d.qcow2 20G"}, exec.on("kvm1"))
}

func TestRunStorageBuildSameSizeIsIdempotent(t *testing.T) {
	exec := &scriptedExec{respond: func(_, command string) (ssh.Result, error) {
		if strings.HasPrefix(command, "test -e") {
			return ssh.Result{}, nil
		}
		return ssh.Result{Stdout: `{"virtual-size": 21474836480}`}, nil
	}}
	r := newRunner(t, exec, "")

	rep := r.RunHost(context.Background(), StorageKVM{HostAddr: "kvm1", DomainPath: "/var/lib/kvm", Storage: "d.qcow2", SizeGB: 20}, plan.OpBuild)

	require.True(t, rep.Success, rep.Messages)
	assert.Len(t, exec.calls, 2)
}

func TestRunStorageBuildKeepsUnreadableImage(t *testing.T) {
	exec := &scriptedExec{respond: func(_, command string) (ssh.Result, error) {
		if strings.HasPrefix(command, "qemu-img info") {
			return ssh.Result{Status: 1, Stderr: `qemu-img: Could not open '/var/lib/kvm/d.qcow2': Failed to get shared "write" lock`}, nil
		}
		return ssh.Result{}, nil
	}}
	r := newRunner(t, exec, "")

	rep := r.RunHost(context.Background(), StorageKVM{HostAddr: "kvm1", DomainPath: "/var/lib/kvm", Storage: "d.qcow2", SizeGB: 20}, plan.OpBuild)

	assert.False(t, rep.Success)
	assert.True(t, strings.HasPrefix(rep.Messages[0], "3024: "), rep.Messages[0])
	for _, c := range exec.calls {
		assert.NotContains(t, c.command, "qemu-img create")
	}
}

func TestRunHostRequiresHost(t *testing.T) {
	exec := &scriptedExec{}
	r := newRunner(t, exec, "")

	rep := r.RunHost(context.Background(), StorageKVM{DomainPath: "/var/lib/kvm", Storage: "d.qcow2"}, plan.OpScrub)

	assert.False(t, rep.Success)
	assert.True(t, strings.HasPrefix(rep.Messages[0], "3107: host is required"), rep.Messages[0])
	assert.Empty(t, exec.calls)
}

func TestVirtualSize(t *testing.T) {
	size, ok := virtualSize(`{"virtual-size": 1073741824}`)
	assert.True(t, ok)
	assert.Equal(t, gib, size)

	_, ok = virtualSize("image: d.qcow2")
	assert.False(t, ok)
}

func TestRunDHCPBuildRejectsPayloadInjection(t *testing.T) {
	exec := &scriptedExec{}
	r := newRunner(t, exec, activeA)

	d := sampleDHCP()
	d.Ranges[0].Start = "10.0.0.10\nPODNET_EOF\ntouch /tmp/pwned\ncat >/dev/null <<'PODNET_EOF'"
	rep := r.Run(context.Background(), d, plan.OpBuild)

	assert.False(t, rep.Success)
	require.Len(t, rep.Messages, 1)
	assert.True(t, strings.HasPrefix(rep.Messages[0], "3001: "), rep.Messages[0])
	assert.Empty(t, exec.calls)
}

func TestRunCIDataBuildOnBothNodes(t *testing.T) {
	exec := &scriptedExec{}
	r := newRunner(t, exec, activeA)

	rep := r.Run(context.Background(), sampleCIData(), plan.OpBuild)

	require.True(t, rep.Success, rep.Messages)
	assert.Equal(t, []string{"1000: Successfully created /etc/netns/ns1100/cloud-init/123_456/v1/metadata and " +
		"/etc/netns/ns1100/cloud-init/123_456/v1/userdata on both PodNet nodes."}, rep.Messages)
	for _, host := range []string{nodeA, nodeB} {
		cmds := exec.on(host)
		require.Len(t, cmds, 2)
		assert.True(t, strings.HasPrefix(cmds[0], "mkdir --parents /etc/netns/ns1100/cloud-init/123_456/v1 && tee /etc/netns/ns1100/cloud-init/123_456/v1/metadata <<'PODNET_EOF'"))
		assert.Contains(t, cmds[0], "\"instance_id\": \"123_456\"")
		assert.True(t, strings.HasPrefix(cmds[1], "tee /etc/netns/ns1100/cloud-init/123_456/v1/userdata <<'PODNET_EOF_1' >/dev/null\n#cloud-config\n"), cmds[1])
		assert.True(t, strings.HasSuffix(cmds[1], "\nPODNET_EOF_1"))
	}
}

func TestRunCIDataRejectsBadMetadata(t *testing.T) {
	exec := &scriptedExec{}
	r := newRunner(t, exec, activeA)

	c := sampleCIData()
	delete(c.Metadata, "instance_id")
	rep := r.Run(context.Background(), c, plan.OpBuild)

	assert.True(t, strings.HasPrefix(rep.Messages[0], "3001: failed to render /etc/netns/ns1100/cloud-init/123_456/v1/metadata"), rep.Messages[0])
	assert.Empty(t, exec.calls)
}

func TestNameLookupsMatchWholeName(t *testing.T) {
	pl, err := NS{Namespace: "ns1"}.Plan(plan.OpScrub)
	require.NoError(t, err)
	assert.Equal(t, "ip netns list | awk '{print $1}' | grep --line-regexp --fixed-strings -- ns1", pl.Steps[0].Command)

	pl, err = BridgeIfNS{Namespace: "ns1", Bridge: "br1"}.Plan(plan.OpRead)
	require.NoError(t, err)
	assert.Equal(t, "ip netns exec ns1 ip link show dev ns1.br1", pl.Steps[0].Command)
}
