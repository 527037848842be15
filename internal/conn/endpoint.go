package conn

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint is the remote address a connection dials.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ParseEndpoint parses "host:port".
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: bad port", s)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return Endpoint{Host: host, Port: port}, nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
