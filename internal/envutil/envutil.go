package envutil

import (
	"net"
	"os"
	"strings"
)

// EnvVar selects the runtime environment
const EnvVar = "STREAMAUTH_ENV"

// IsDev reports whether we're running in development mode, where plain
// HTTP provider endpoints are accepted
func IsDev() bool {
	env := strings.ToLower(os.Getenv(EnvVar))
	return env == "development" || env == "dev"
}

// IsLoopbackHost reports whether host names this machine
func IsLoopbackHost(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
