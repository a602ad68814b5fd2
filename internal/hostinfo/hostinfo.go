// Package hostinfo reports network facts about the host the server
// runs on.
package hostinfo

import "net"

// LocalIP returns the host's primary outbound IPv4 address. The UDP
// dial never sends a packet; it only asks the kernel which interface
// would route to a public address. Falls back to walking the
// interfaces, then to the loopback address.
func LocalIP() string {
	if conn, err := net.Dial("udp4", "8.8.8.8:80"); err == nil {
		addr := conn.LocalAddr().(*net.UDPAddr)
		conn.Close()
		if ip := addr.IP.To4(); ip != nil {
			return ip.String()
		}
	}

	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if ip := ipnet.IP.To4(); ip != nil {
				return ip.String()
			}
		}
	}
	return "127.0.0.1"
}
