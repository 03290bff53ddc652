package network

import (
	"net"
	"runtime"
	"strings"
)

// Transport is the medium behind an active network interface.
type Transport string

const (
	TransportWiFi     Transport = "wifi"
	TransportCellular Transport = "cellular"
	TransportEthernet Transport = "ethernet"
)

// Checker reports whether any usable network transport is active.
type Checker interface {
	Available() bool
}

// Interface is the subset of net.Interface the checker needs.
type Interface struct {
	Name  string
	Flags net.Flags
	Addrs []net.Addr
}

// InterfaceChecker inspects OS network interfaces. A missing or unreadable
// interface table yields false, never an error.
type InterfaceChecker struct {
	list func() ([]Interface, error)
}

// NewInterfaceChecker returns a checker backed by net.Interfaces.
func NewInterfaceChecker() *InterfaceChecker {
	return &InterfaceChecker{list: systemInterfaces}
}

// NewInterfaceCheckerWith returns a checker over a custom interface lister.
func NewInterfaceCheckerWith(list func() ([]Interface, error)) *InterfaceChecker {
	return &InterfaceChecker{list: list}
}

// Available returns true iff at least one WiFi, cellular or ethernet
// interface is up and carries a routable address.
func (c *InterfaceChecker) Available() bool {
	return len(c.Transports()) > 0
}

// Transports lists the distinct active transports in discovery order.
func (c *InterfaceChecker) Transports() []Transport {
	ifaces, err := c.list()
	if err != nil {
		return nil
	}
	seen := make(map[Transport]bool)
	var out []Transport
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if !hasUsableAddr(iface.Addrs) {
			continue
		}
		tr, ok := Classify(iface.Name)
		if !ok || seen[tr] {
			continue
		}
		seen[tr] = true
		out = append(out, tr)
	}
	return out
}

// Classify maps an interface name to its transport using the naming of the
// running OS.
func Classify(name string) (Transport, bool) {
	return ClassifyFor(runtime.GOOS, name)
}

// ClassifyFor maps an interface name using the naming of goos. On darwin
// en0 is the built-in Wi-Fi of current Macs and other en* are wired ports;
// Linux and Android names follow the udev and vendor prefixes.
func ClassifyFor(goos, name string) (Transport, bool) {
	n := strings.ToLower(name)
	if goos == "darwin" && n == "en0" {
		return TransportWiFi, true
	}
	switch {
	case hasAnyPrefix(n, "wl", "wifi", "ath"):
		return TransportWiFi, true
	case hasAnyPrefix(n, "wwan", "rmnet", "ccmni", "ppp", "usb"):
		return TransportCellular, true
	case hasAnyPrefix(n, "eth", "en", "em"):
		return TransportEthernet, true
	}
	return "", false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func hasUsableAddr(addrs []net.Addr) bool {
	for _, a := range addrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			continue
		}
		return true
	}
	return false
}

func systemInterfaces() ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]Interface, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		out = append(out, Interface{Name: iface.Name, Flags: iface.Flags, Addrs: addrs})
	}
	return out, nil
}

// Static is a Checker with a fixed answer (e.g. --offline).
type Static bool

func (s Static) Available() bool { return bool(s) }
