// Package nodeid builds and persists the "ip:id" peer identity string
// used throughout the presence and broadcast protocol (§6.2).
package nodeid

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const fileName = "node-id"

// LocalIP returns this host's outbound IPv4 address — the address its
// peers would see packets arrive from. Dialing a UDP "connection" never
// sends a packet; it only asks the kernel to pick a route, which is the
// standard trick for discovering the local address without enumerating
// every interface.
func LocalIP() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("nodeid: determine local IP: %w", err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("nodeid: unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}

// Load returns this node's "ip:id" identity, generating and persisting a
// random id suffix under configDir on first boot (the teacher's
// /etc/machine-id-backed LocalNodeID, adapted: the wire format needs a
// uint16, not a full UUID, so only two bytes of a fresh uuid.New() are
// kept as the persisted suffix).
func Load(configDir, localIP string) (string, error) {
	path := filepath.Join(configDir, fileName)

	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			if _, err := strconv.ParseUint(id, 10, 16); err == nil {
				return localIP + ":" + id, nil
			}
		}
	}

	raw := uuid.New()
	suffix := uint16(raw[0])<<8 | uint16(raw[1])

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("nodeid: create config dir %s: %w", configDir, err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(int(suffix))), 0o644); err != nil {
		return "", fmt.Errorf("nodeid: persist id to %s: %w", path, err)
	}
	return fmt.Sprintf("%s:%d", localIP, suffix), nil
}
