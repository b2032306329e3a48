package config

import (
	"errors"
	"fmt"
)

// Server holds the signaling relay configuration.
type Server struct {
	Bind     string
	Port     int
	Prefix   string
	Domain   string
	MaxPeers int
	Profile  bool
	TLSCert  string
	TLSKey   string
	Verbose  bool
}

func (s *Server) Validate() error {
	if (s.TLSCert == "") != (s.TLSKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", s.Port)
	}
	if s.MaxPeers < 2 {
		return fmt.Errorf("invalid max peers (must be at least 2): %d", s.MaxPeers)
	}
	return nil
}

func (s *Server) Scheme() string {
	if s.TLSCert != "" && s.TLSKey != "" {
		return "https"
	}
	return "http"
}
