// Package podnet resolves which PodNet node of an HA pair is active.
//
// The pair is described by a small JSON document (config.json) holding the
// pair's IPv6 subnet and one enabled flag per node. Resolve never caches: the
// file is read on every call so a failover edit takes effect immediately.
package podnet

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "/opt/robot/config.json"

const (
	FieldSubnet   = "ipv6_subnet"
	FieldAEnabled = "podnet_a_enabled"
	FieldBEnabled = "podnet_b_enabled"
)

const (
	NodeA = "podnet_a"
	NodeB = "podnet_b"
)

var (
	suffixA = netip.MustParseAddr("::10:0:2")
	suffixB = netip.MustParseAddr("::10:0:3")
)

// HAConfig is the validated content of config.json.
type HAConfig struct {
	Subnet   netip.Prefix
	AEnabled bool
	BEnabled bool
}

// NodePair names the node every mutation runs on first (Active) and the node
// that mirrors it (Standby).
type NodePair struct {
	Active      string
	Standby     string
	ActiveName  string
	StandbyName string
}

type Resolution struct {
	Path   string
	Config HAConfig
	NodeA  string
	NodeB  string
	Pair   NodePair
}

// Resolve reads path and derives the active/standby pair.
func Resolve(path string) (Resolution, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultConfigPath
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Resolution{}, &ConfigError{Kind: KindMissingFile, Path: path, Err: err}
		}
		return Resolution{}, &ConfigError{Kind: KindParse, Path: path, Err: err}
	}
	return Parse(path, raw)
}

// Parse validates an already loaded config.json document. The document is
// decoded into a generic map so enablement values of the wrong type are
// reported instead of coerced.
func Parse(path string, raw []byte) (Resolution, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Resolution{}, &ConfigError{Kind: KindParse, Path: path, Err: err}
	}
	if doc == nil {
		return Resolution{}, &ConfigError{Kind: KindParse, Path: path, Err: errors.New("document is empty")}
	}

	rawSubnet, ok := doc[FieldSubnet]
	if !ok || rawSubnet == nil {
		return Resolution{}, &ConfigError{Kind: KindMissingField, Path: path, Field: FieldSubnet}
	}
	subnet, err := parseSubnet(rawSubnet)
	if err != nil {
		return Resolution{}, &ConfigError{Kind: KindInvalidSubnet, Path: path, Field: FieldSubnet, Err: err}
	}

	rawA, ok := doc[FieldAEnabled]
	if !ok || rawA == nil {
		return Resolution{}, &ConfigError{Kind: KindMissingField, Path: path, Field: FieldAEnabled}
	}
	rawB, ok := doc[FieldBEnabled]
	if !ok || rawB == nil {
		return Resolution{}, &ConfigError{Kind: KindMissingField, Path: path, Field: FieldBEnabled}
	}
	aEnabled, aOK := rawA.(bool)
	bEnabled, bOK := rawB.(bool)
	switch {
	case !aOK || !bOK:
		return Resolution{}, &ConfigError{Kind: KindNonBoolean, Path: path, Err: fmt.Errorf("%s=%v, %s=%v", FieldAEnabled, rawA, FieldBEnabled, rawB)}
	case aEnabled && bEnabled:
		return Resolution{}, &ConfigError{Kind: KindBothTrue, Path: path}
	case !aEnabled && !bEnabled:
		return Resolution{}, &ConfigError{Kind: KindBothFalse, Path: path}
	}

	a, b := NodeAddresses(subnet)
	res := Resolution{
		Path:   path,
		Config: HAConfig{Subnet: subnet, AEnabled: aEnabled, BEnabled: bEnabled},
		NodeA:  a.String(),
		NodeB:  b.String(),
	}
	if aEnabled {
		res.Pair = NodePair{Active: res.NodeA, Standby: res.NodeB, ActiveName: NodeA, StandbyName: NodeB}
	} else {
		res.Pair = NodePair{Active: res.NodeB, Standby: res.NodeA, ActiveName: NodeB, StandbyName: NodeA}
	}
	return res, nil
}

func parseSubnet(v any) (netip.Prefix, error) {
	s, ok := v.(string)
	if !ok {
		return netip.Prefix{}, fmt.Errorf("expected a string, got %T", v)
	}
	p, err := netip.ParsePrefix(strings.TrimSpace(s))
	if err != nil {
		return netip.Prefix{}, err
	}
	if !p.Addr().Is6() || p.Addr().Is4In6() {
		return netip.Prefix{}, fmt.Errorf("%s is not an IPv6 prefix", s)
	}
	if p.Masked() != p {
		return netip.Prefix{}, fmt.Errorf("%s has host bits set", s)
	}
	// The node suffixes occupy the low 48 bits.
	if p.Bits() > 80 {
		return netip.Prefix{}, fmt.Errorf("%s is longer than /80", s)
	}
	return p, nil
}

// NodeAddresses returns the PodNet A and B addresses inside subnet.
func NodeAddresses(subnet netip.Prefix) (netip.Addr, netip.Addr) {
	network := subnet.Masked().Addr().As16()
	return orAddr(network, suffixA.As16()), orAddr(network, suffixB.As16())
}

func orAddr(a, b [16]byte) netip.Addr {
	var out [16]byte
	for i := range out {
		out[i] = a[i] | b[i]
	}
	return netip.AddrFrom16(out)
}
