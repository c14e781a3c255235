//go:build linux
// +build linux

package inventory

import (
	"fmt"
	"net"
	"sort"

	"github.com/vishvananda/netlink"
)

// netlinkSource implements LinkSource with rtnetlink.
type netlinkSource struct{}

// NewNetlinkSource returns the kernel-backed link source.
func NewNetlinkSource() LinkSource {
	return &netlinkSource{}
}

// Links lists every link with its IPv4 addresses.
func (s *netlinkSource) Links() ([]Link, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	out := make([]Link, 0, len(links))
	for _, l := range links {
		attrs := l.Attrs()
		if attrs == nil {
			continue
		}
		link := Link{
			Name:         attrs.Name,
			Index:        attrs.Index,
			Kind:         l.Type(),
			EncapType:    attrs.EncapType,
			HardwareAddr: attrs.HardwareAddr.String(),
			Up:           attrs.Flags&net.FlagUp != 0,
			Loopback:     attrs.Flags&net.FlagLoopback != 0,
			OperState:    attrs.OperState.String(),
		}
		addrs, err := netlink.AddrList(l, netlink.FAMILY_V4)
		if err != nil {
			logger.WithError(err).WithField("interface", attrs.Name).Debug("Failed to list addresses")
		}
		for _, a := range addrs {
			link.Addresses = append(link.Addresses, a.IPNet.String())
		}
		out = append(out, link)
	}
	return out, nil
}

// DefaultRoutes lists IPv4 default routes ordered by metric.
func (s *netlinkSource) DefaultRoutes() ([]Route, error) {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	var out []Route
	for _, r := range routes {
		if !isDefaultRoute(r) || r.LinkIndex == 0 {
			continue
		}
		link, err := netlink.LinkByIndex(r.LinkIndex)
		if err != nil {
			continue
		}
		route := Route{Interface: link.Attrs().Name, Metric: r.Priority}
		if r.Gw != nil {
			route.Gateway = r.Gw.String()
		}
		out = append(out, route)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out, nil
}

// RouteGet asks the kernel which interface it would use for dst.
func (s *netlinkSource) RouteGet(dst string) (string, error) {
	ip := net.ParseIP(dst)
	if ip == nil {
		return "", fmt.Errorf("invalid destination %q", dst)
	}
	routes, err := netlink.RouteGet(ip)
	if err != nil {
		return "", err
	}
	if len(routes) == 0 || routes[0].LinkIndex == 0 {
		return "", nil
	}
	link, err := netlink.LinkByIndex(routes[0].LinkIndex)
	if err != nil {
		return "", err
	}
	return link.Attrs().Name, nil
}

func isDefaultRoute(r netlink.Route) bool {
	if r.Dst == nil {
		return true
	}
	ones, _ := r.Dst.Mask.Size()
	return ones == 0 && r.Dst.IP.IsUnspecified()
}
