package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every flag name to form its environment key,
// e.g. --turn-user reads SNAKE_TURN_USER.
const EnvPrefix = "SNAKE"

// Default client values. The ICE servers are the public openrelay project,
// which needs no account.
const (
	DefaultDomain   = "localhost:8080"
	DefaultSTUN     = "stun:openrelay.metered.ca:80"
	DefaultTURN     = "turn:openrelay.metered.ca"
	DefaultTURNUser = "openrelayproject"
	DefaultTURNPass = "openrelayproject"
)

// Config holds the client configuration.
type Config struct {
	// Domain is the signaling relay host[:port]
	Domain string

	// WebSocketURL is constructed from domain
	WebSocketURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool
}

// Options carries already-resolved flag/env values. Empty fields take defaults.
type Options struct {
	Domain     string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
}

// Load fills unset options with defaults and derives the relay URL.
func Load(opts Options) (*Config, error) {
	cfg := &Config{
		Domain:     firstNonEmpty(opts.Domain, DefaultDomain),
		STUNServer: firstNonEmpty(opts.STUNServer, DefaultSTUN),
		TURNServer: firstNonEmpty(opts.TURNServer, DefaultTURN),
		TURNUser:   firstNonEmpty(opts.TURNUser, DefaultTURNUser),
		TURNPass:   firstNonEmpty(opts.TURNPass, DefaultTURNPass),
		ForceRelay: opts.ForceRelay,
	}

	if strings.Contains(cfg.Domain, "/") {
		return nil, fmt.Errorf("domain must be host[:port], got %q", cfg.Domain)
	}
	if cfg.ForceRelay && cfg.TURNServer == "" {
		return nil, errors.New("cannot force relay mode without TURN server configured")
	}

	scheme := "wss"
	if isLocal(cfg.Domain) {
		scheme = "ws"
	}
	cfg.WebSocketURL = fmt.Sprintf("%s://%s/ws", scheme, cfg.Domain)

	return cfg, nil
}

// GetRoomLink returns the shareable URL for a lobby name.
func (c *Config) GetRoomLink(roomID string) string {
	scheme := "https"
	if isLocal(c.Domain) {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/r/%s", scheme, c.Domain, roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:80", c.TURNServer),
		fmt.Sprintf("%s:443", c.TURNServer),
		fmt.Sprintf("%s:443?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// BindEnv lets SNAKE_* environment variables stand in for flags that were
// not given on the command line. Call it after all flags are declared.
func BindEnv(fs *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func isLocal(domain string) bool {
	host := domain
	if h, _, err := net.SplitHostPort(domain); err == nil {
		host = h
	}
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
