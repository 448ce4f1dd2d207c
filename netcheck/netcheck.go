// Package netcheck runs best-effort local network diagnostics before the
// session runtime attempts its first connect: finding the default gateway,
// and probing it for NAT-PMP or UPnP support. None of this blocks or gates
// Connect — a WebSocket client works fine behind NAT without any port
// forwarding — it only gives the installer something concrete to show a
// user stuck behind a restrictive network.
package netcheck

import (
	"fmt"
	"net"
	"time"

	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
	upnp "gitlab.com/NebulousLabs/go-upnp"

	"github.com/wizardsardine/liana-business-session/bclog"
)

// Method names the port-mapping protocol, if any, a Report found available.
type Method string

// The methods Probe can report.
const (
	MethodNone   Method = "none"
	MethodNATPMP Method = "nat-pmp"
	MethodUPnP   Method = "upnp"
)

// Report summarizes what Probe found.
type Report struct {
	GatewayIP  string
	ExternalIP string
	Method     Method
	Detail     string
}

// natPMPTimeout bounds how long a NAT-PMP round trip is allowed to take on
// a typical home LAN.
const natPMPTimeout = 2 * time.Second

// Probe runs the gateway/NAT-PMP/UPnP discovery sequence once, tolerating
// every failure: a Report with Method == MethodNone and a Detail explaining
// why is a normal, expected outcome on a plain home router.
func Probe() Report {
	gatewayIP, err := gateway.DiscoverGateway()
	if err != nil {
		bclog.NetLog.Debugf("gateway discovery failed: %v", err)
		return Report{Method: MethodNone, Detail: fmt.Sprintf("no gateway found: %v", err)}
	}
	report := Report{GatewayIP: gatewayIP.String()}

	if ext, ok := probeNATPMP(gatewayIP.String()); ok {
		report.Method = MethodNATPMP
		report.ExternalIP = ext
		return report
	}

	if ext, ok := probeUPnP(); ok {
		report.Method = MethodUPnP
		report.ExternalIP = ext
		return report
	}

	report.Method = MethodNone
	report.Detail = "gateway found but supports neither NAT-PMP nor UPnP"
	return report
}

func probeNATPMP(gatewayIP string) (string, bool) {
	client := natpmp.NewClientWithTimeout(net.ParseIP(gatewayIP), natPMPTimeout)
	resp, err := client.GetExternalAddress()
	if err != nil {
		bclog.NetLog.Debugf("nat-pmp probe failed: %v", err)
		return "", false
	}
	ip := fmt.Sprintf("%d.%d.%d.%d", resp.ExternalIPAddress[0], resp.ExternalIPAddress[1],
		resp.ExternalIPAddress[2], resp.ExternalIPAddress[3])
	return ip, true
}

func probeUPnP() (string, bool) {
	igd, err := upnp.Discover()
	if err != nil {
		bclog.NetLog.Debugf("upnp discovery failed: %v", err)
		return "", false
	}
	ext, err := igd.ExternalIP()
	if err != nil {
		bclog.NetLog.Debugf("upnp external ip query failed: %v", err)
		return "", false
	}
	return ext, true
}
