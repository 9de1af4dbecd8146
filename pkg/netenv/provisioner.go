package netenv

import (
	"context"
)

// Interface describes the observable state of a network interface, either
// on the host or inside a named network namespace.
type Interface struct {
	Name      string
	State     string
	Addresses []string
}

// Provisioner drives the operating system networking primitives that back a
// test environment: named network namespaces, veth pairs, addresses and
// per-interface sysctl tuning. An empty namespace argument refers to the
// host network namespace.
type Provisioner interface {
	CreateNamespace(name string) error
	DeleteNamespace(name string) error
	CreateVethPair(hostName, peerName string) error
	DeleteInterface(name string) error
	MoveToNamespace(iface, ns string) error
	SetUp(ns, iface string) error
	SetDown(ns, iface string) error
	AssignAddress(ns, iface, cidr string) error
	DisableDAD(ns, iface string) error
	// InterfaceInfo reports on the named interface; with an empty iface it
	// reports on the first non-loopback interface found.
	InterfaceInfo(ns, iface string) (*Interface, error)
	RunInNamespace(ctx context.Context, ns string, argv []string) error
}
