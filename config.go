// Package llas is the voice transport core: a TURN-relayed UDP session with
// per-peer jitter buffering, quality monitoring, and a telemetry bus.
package llas

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// TurnConfig carries everything needed to allocate a relayed transport
// address and authenticate against the TURN server.
type TurnConfig struct {
	ServerAddr string // host:port, normalized from a turn:// URL if given.
	Username   string
	Credential string
	Realm      string
}

// LoadTurnConfig reads TURN_SERVER_URL, TURN_USERNAME, TURN_CREDENTIAL, and
// TURN_REALM from the environment. All four are required; a missing one is
// reported by name rather than failing silently with a zero-value config.
func LoadTurnConfig() (TurnConfig, error) {
	serverURL, err := requireEnv("TURN_SERVER_URL")
	if err != nil {
		return TurnConfig{}, err
	}
	username, err := requireEnv("TURN_USERNAME")
	if err != nil {
		return TurnConfig{}, err
	}
	credential, err := requireEnv("TURN_CREDENTIAL")
	if err != nil {
		return TurnConfig{}, err
	}
	realm, err := requireEnv("TURN_REALM")
	if err != nil {
		return TurnConfig{}, err
	}

	addr, err := NormalizeTurnServerAddr(serverURL)
	if err != nil {
		return TurnConfig{}, err
	}

	return TurnConfig{
		ServerAddr: addr,
		Username:   username,
		Credential: credential,
		Realm:      realm,
	}, nil
}

func requireEnv(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("llas: environment variable %s is required", name)
	}
	return v, nil
}

// NormalizeTurnServerAddr accepts turn:// / turns:// URLs as well as a bare
// host:port and returns a canonical host:port for UDP dialing. Exported so
// callers that build a TurnConfig from flags or other non-environment
// sources (cmd/voicecore-probe) can normalize the same way LoadTurnConfig
// does.
func NormalizeTurnServerAddr(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("llas: TURN server address is required")
	}

	if strings.HasPrefix(s, "turn:") || strings.HasPrefix(s, "turns:") {
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("llas: invalid TURN server address: %w", err)
		}
		if u.Opaque != "" {
			// url.Parse treats "turn:host:port" as scheme+opaque, not
			// scheme+host, since "turn" isn't a registered scheme.
			s = u.Opaque
		} else if u.Host != "" {
			s = u.Host
		}
	}

	s = strings.TrimSuffix(s, "/")
	if s == "" {
		return "", fmt.Errorf("llas: invalid TURN server address: missing host")
	}
	if !strings.Contains(s, ":") {
		return "", fmt.Errorf("llas: TURN server address %q must include a port", raw)
	}
	return s, nil
}
