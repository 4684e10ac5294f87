// Command ircd is the server entrypoint: load the config file named by
// -conf, build the configured server variant, and run it until a clean
// shutdown.
package main

import (
	"flag"
	"log"
	"path/filepath"
	"time"

	"github.com/horgh/ircrelay/internal/config"
	"github.com/horgh/ircrelay/internal/ircd"
)

func main() {
	log.SetFlags(0)

	configFile := flag.String("conf", "", "Configuration file.")
	flag.Parse()

	if *configFile == "" {
		log.Fatal("you must provide a configuration file (-conf)")
	}

	configPath, err := filepath.Abs(*configFile)
	if err != nil {
		log.Fatalf("resolving configuration path: %s", err)
	}

	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		log.Fatalf("loading configuration: %s", err)
	}

	serverCfg := ircd.ServerConfig{
		ListenHost:    cfg.ListenHost,
		ListenPort:    cfg.ListenPort,
		ServerName:    cfg.ServerName,
		Version:       cfg.Version,
		CreatedDate:   cfg.CreatedDate,
		UserCap:       cfg.UserCap,
		WaitTime:      time.Duration(cfg.WaitTime) * time.Second,
		QueueCapacity: 64,
		FdCapacity:    4096,
	}

	if cfg.Threaded {
		ts, err := ircd.NewThreadedServer(serverCfg, cfg.Threads)
		if err != nil {
			log.Fatalf("starting threaded server: %s", err)
		}
		if err := ts.Run(); err != nil {
			log.Fatalf("server error: %s", err)
		}
		log.Printf("Server shutdown cleanly.")
		return
	}

	s, err := ircd.NewServer(serverCfg)
	if err != nil {
		log.Fatalf("starting server: %s", err)
	}
	if err := s.Run(); err != nil {
		log.Fatalf("server error: %s", err)
	}
	log.Printf("Server shutdown cleanly.")
}
