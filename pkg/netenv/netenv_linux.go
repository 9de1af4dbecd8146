//go:build linux

package netenv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

const netnsRunDir = "/run/netns"

type linuxProvisioner struct{}

// NewProvisioner returns a Provisioner backed by netlink and named network
// namespaces under /run/netns.
func NewProvisioner() Provisioner {
	return &linuxProvisioner{}
}

func (p *linuxProvisioner) CreateNamespace(name string) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hostNS, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get host namespace: %w", err)
	}
	defer hostNS.Close()

	// NewNamed switches the current thread into the new namespace.
	nsHandle, err := netns.NewNamed(name)
	if err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	defer nsHandle.Close()
	defer func() {
		_ = netns.Set(hostNS)
	}()

	lo, err := netlink.LinkByName("lo")
	if err != nil {
		return fmt.Errorf("failed to find lo in namespace %s: %w", name, err)
	}
	if err := netlink.LinkSetUp(lo); err != nil {
		return fmt.Errorf("failed to bring up lo in namespace %s: %w", name, err)
	}
	return nil
}

func (p *linuxProvisioner) DeleteNamespace(name string) error {
	if err := netns.DeleteNamed(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete namespace %s: %w", name, err)
	}
	return nil
}

func (p *linuxProvisioner) CreateVethPair(hostName, peerName string) error {
	attrs := netlink.NewLinkAttrs()
	attrs.Name = hostName
	veth := &netlink.Veth{
		LinkAttrs: attrs,
		PeerName:  peerName,
	}
	if err := netlink.LinkAdd(veth); err != nil {
		return fmt.Errorf("failed to create veth pair %s/%s: %w", hostName, peerName, err)
	}
	return nil
}

func (p *linuxProvisioner) DeleteInterface(name string) error {
	link, err := findInterface(name)
	if err != nil {
		return err
	}
	if link == nil {
		return nil
	}
	if err := netlink.LinkDel(link); err != nil {
		return fmt.Errorf("failed to delete interface %s: %w", name, err)
	}
	return nil
}

func (p *linuxProvisioner) MoveToNamespace(iface, ns string) error {
	nsHandle, err := netns.GetFromName(ns)
	if err != nil {
		return fmt.Errorf("failed to open namespace %s: %w", ns, err)
	}
	defer nsHandle.Close()

	link, err := netlink.LinkByName(iface)
	if err != nil {
		return fmt.Errorf("failed to find interface %s: %w", iface, err)
	}
	if err := netlink.LinkSetNsFd(link, int(nsHandle)); err != nil {
		return fmt.Errorf("failed to move interface %s to namespace %s: %w", iface, ns, err)
	}
	return nil
}

func (p *linuxProvisioner) SetUp(ns, iface string) error {
	return p.inNamespace(ns, func() error {
		link, err := netlink.LinkByName(iface)
		if err != nil {
			return fmt.Errorf("failed to find interface %s: %w", iface, err)
		}
		if err := netlink.LinkSetUp(link); err != nil {
			return fmt.Errorf("failed to set interface %s up: %w", iface, err)
		}
		return nil
	})
}

func (p *linuxProvisioner) SetDown(ns, iface string) error {
	return p.inNamespace(ns, func() error {
		link, err := netlink.LinkByName(iface)
		if err != nil {
			return fmt.Errorf("failed to find interface %s: %w", iface, err)
		}
		if err := netlink.LinkSetDown(link); err != nil {
			return fmt.Errorf("failed to set interface %s down: %w", iface, err)
		}
		return nil
	})
}

func (p *linuxProvisioner) AssignAddress(ns, iface, cidr string) error {
	return p.inNamespace(ns, func() error {
		link, err := netlink.LinkByName(iface)
		if err != nil {
			return fmt.Errorf("failed to find interface %s: %w", iface, err)
		}
		addr, err := netlink.ParseAddr(cidr)
		if err != nil {
			return fmt.Errorf("failed to parse address %s: %w", cidr, err)
		}
		if err := netlink.AddrAdd(link, addr); err != nil && !os.IsExist(err) {
			return fmt.Errorf("failed to assign %s to interface %s: %w", cidr, iface, err)
		}
		return nil
	})
}

func (p *linuxProvisioner) DisableDAD(ns, iface string) error {
	return p.inNamespace(ns, func() error {
		// /proc/sys/net reflects the network namespace of the writing thread.
		path := fmt.Sprintf("/proc/sys/net/ipv6/conf/%s/accept_dad", iface)
		if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
			return fmt.Errorf("failed to disable duplicate address detection on %s: %w", iface, err)
		}
		return nil
	})
}

func (p *linuxProvisioner) InterfaceInfo(ns, iface string) (*Interface, error) {
	var info *Interface
	err := p.inNamespace(ns, func() error {
		link, err := resolveLink(iface)
		if err != nil {
			return err
		}
		if link == nil {
			return nil
		}
		addrList, err := netlink.AddrList(link, netlink.FAMILY_ALL)
		if err != nil {
			return fmt.Errorf("failed to get address list for interface %s: %w", link.Attrs().Name, err)
		}
		var addresses []string
		for _, addr := range addrList {
			addresses = append(addresses, addr.IPNet.String())
		}
		info = &Interface{
			Name:      link.Attrs().Name,
			State:     link.Attrs().OperState.String(),
			Addresses: addresses,
		}
		return nil
	})
	return info, err
}

func (p *linuxProvisioner) RunInNamespace(ctx context.Context, ns string, argv []string) error {
	if len(argv) == 0 {
		return errors.New("no command specified")
	}
	nsPath := fmt.Sprintf("%s/%s", netnsRunDir, ns)
	nsenterArgs := append([]string{"--net=" + nsPath, "--"}, argv...)
	cmd := exec.CommandContext(ctx, "nsenter", nsenterArgs...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// inNamespace runs fn with the current thread switched into the named network
// namespace, restoring the host namespace before returning. With an empty
// name fn runs in the host namespace directly.
func (p *linuxProvisioner) inNamespace(ns string, fn func() error) error {
	if ns == "" {
		return fn()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hostNS, err := netns.Get()
	if err != nil {
		return fmt.Errorf("failed to get host namespace: %w", err)
	}
	defer hostNS.Close()

	nsHandle, err := netns.GetFromName(ns)
	if err != nil {
		return fmt.Errorf("failed to open namespace %s: %w", ns, err)
	}
	defer nsHandle.Close()

	if err := netns.Set(nsHandle); err != nil {
		return fmt.Errorf("failed to enter namespace %s: %w", ns, err)
	}
	defer func() {
		_ = netns.Set(hostNS)
	}()

	return fn()
}

func findInterface(name string) (netlink.Link, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		if os.IsNotExist(err) || errors.As(err, &netlink.LinkNotFoundError{}) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find link by name: %w", err)
	}
	return link, nil
}

func resolveLink(iface string) (netlink.Link, error) {
	if iface != "" {
		return findInterface(iface)
	}
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	for _, link := range links {
		if link.Attrs().Name == "lo" {
			continue
		}
		return link, nil
	}
	return nil, nil
}
