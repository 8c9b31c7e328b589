package gateway

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
)

// handleServerInfo reports the listen port and LAN-reachable addresses so
// a client on another device can find the server.
func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	addrs := lanIPv4s()
	urls := make([]string, 0, len(addrs))
	for _, a := range addrs {
		urls = append(urls, fmt.Sprintf("http://%s:%d", a, s.cfg.Server.Port))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"port":           s.cfg.Server.Port,
		"addresses":      addrs,
		"connectionUrls": urls,
	})
}

// lanIPv4s lists non-internal IPv4 addresses of up interfaces.
func lanIPv4s() []string {
	out := []string{}
	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
				continue
			}
			out = append(out, ip.String())
		}
	}
	return out
}
