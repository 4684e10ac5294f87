// Package config loads the server and client configuration files, built
// on github.com/horgh/config's "key = value" file parser. Keys absent
// from the file fall back to the documented defaults; keys that are
// present are validated.
package config

import (
	"fmt"
	"strconv"

	hconfig "github.com/horgh/config"
	"github.com/pkg/errors"
)

// Defaults applied when the corresponding config key is absent.
const (
	DefaultListenHost    = "0.0.0.0"
	DefaultListenPort    = "50100"
	DefaultUserCap       = 64
	DefaultWaitTimeSecs  = 60
	DefaultWorkerThreads = 4
)

// ServerConfig holds an ircd server's configuration.
type ServerConfig struct {
	ListenHost  string
	ListenPort  string
	ServerName  string
	Version     string
	CreatedDate string
	MOTD        string

	// UserCap is the per-channel membership cap applied to newly created
	// channels.
	UserCap int

	// WaitTime, in seconds, is how long a registration-incomplete client
	// may idle before being closed, and how long a registered one may
	// idle before being PINGed.
	WaitTime int

	// Threaded selects the reader-pool/writer-thread server variant;
	// Threads is its worker count.
	Threaded bool
	Threads  int
}

// LoadServerConfig reads a server config file. Only server-name is
// required; every other key falls back to its default.
func LoadServerConfig(path string) (ServerConfig, error) {
	raw, err := hconfig.ReadStringMap(path)
	if err != nil {
		return ServerConfig{}, errors.Wrap(err, "reading server config")
	}

	c := ServerConfig{
		ListenHost:  stringOr(raw, "listen-host", DefaultListenHost),
		ListenPort:  stringOr(raw, "listen-port", DefaultListenPort),
		ServerName:  raw["server-name"],
		Version:     stringOr(raw, "version", "1.0"),
		CreatedDate: raw["created-date"],
		MOTD:        raw["motd"],
		Threaded:    raw["threaded"] == "yes",
	}

	if c.ServerName == "" {
		return ServerConfig{}, fmt.Errorf("server-name is blank")
	}

	if c.UserCap, err = intOr(raw, "user-cap", DefaultUserCap); err != nil {
		return ServerConfig{}, err
	}
	if c.WaitTime, err = intOr(raw, "wait-time", DefaultWaitTimeSecs); err != nil {
		return ServerConfig{}, err
	}
	if c.Threads, err = intOr(raw, "threads", DefaultWorkerThreads); err != nil {
		return ServerConfig{}, err
	}

	if c.UserCap <= 0 {
		return ServerConfig{}, fmt.Errorf("user-cap must be positive")
	}
	if c.WaitTime <= 0 {
		return ServerConfig{}, fmt.Errorf("wait-time must be positive")
	}
	if c.Threads <= 0 {
		return ServerConfig{}, fmt.Errorf("threads must be positive")
	}

	return c, nil
}

// ClientConfig holds the terminal client's configuration.
type ClientConfig struct {
	ServerAddress string
	ServerPort    string
	Nick          string
}

// LoadClientConfig reads a client config file. server-address is
// required; server-port falls back to the server's default port.
func LoadClientConfig(path string) (ClientConfig, error) {
	raw, err := hconfig.ReadStringMap(path)
	if err != nil {
		return ClientConfig{}, errors.Wrap(err, "reading client config")
	}

	c := ClientConfig{
		ServerAddress: raw["server-address"],
		ServerPort:    stringOr(raw, "server-port", DefaultListenPort),
		Nick:          raw["nick"],
	}

	if c.ServerAddress == "" {
		return ClientConfig{}, fmt.Errorf("server-address is blank")
	}

	return c, nil
}

func stringOr(raw map[string]string, key, fallback string) string {
	if v, ok := raw[key]; ok && v != "" {
		return v
	}
	return fallback
}

func intOr(raw map[string]string, key string, fallback int) (int, error) {
	v, ok := raw[key]
	if !ok || v == "" {
		return fallback, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %s is not a number", key, v)
	}
	return n, nil
}
