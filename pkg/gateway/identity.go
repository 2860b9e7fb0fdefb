package gateway

import (
	"os"

	"github.com/denisbrodbeck/machineid"
)

// GatewayID resolves the identity stamped on every published message.
// A configured id wins; otherwise the machine id is used, then the
// hostname as a last resort.
func GatewayID(configured string) string {
	if configured != "" {
		return configured
	}
	if id, err := machineid.ID(); err == nil {
		return id
	}
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "m16-gateway"
}
