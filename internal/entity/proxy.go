package entity

// DirectProvider names the sentinel endpoint used when no proxy could be loaded.
const DirectProvider = "direct"

// ProxyEndpoint is a candidate egress point, "http://host:port".
type ProxyEndpoint struct {
	Address  string `json:"address"`
	Provider string `json:"provider"`
}

// Direct returns the sentinel that means "connect without a proxy".
func Direct() ProxyEndpoint {
	return ProxyEndpoint{Provider: DirectProvider}
}

func (p ProxyEndpoint) IsDirect() bool {
	return p.Address == ""
}

func (p ProxyEndpoint) String() string {
	if p.IsDirect() {
		return DirectProvider
	}
	return p.Address
}
