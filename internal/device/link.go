package device

import (
	"fmt"

	"github.com/vishvananda/netlink"
)

// LinkController toggles the administrative state of an interface.
type LinkController interface {
	SetUp(name string) error
	SetDown(name string) error
}

// NetlinkLinks drives links through rtnetlink.
type NetlinkLinks struct{}

func (NetlinkLinks) SetUp(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup link %s: %w", name, err)
	}
	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set link %s up: %w", name, err)
	}
	return nil
}

func (NetlinkLinks) SetDown(name string) error {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return fmt.Errorf("lookup link %s: %w", name, err)
	}
	if err := netlink.LinkSetDown(link); err != nil {
		return fmt.Errorf("set link %s down: %w", name, err)
	}
	return nil
}
