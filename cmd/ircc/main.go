// Command ircc is the terminal client entrypoint. It supplies a minimal
// console UI (stdin/stdout) -- no windowing, scrollback, or colour, just
// enough to drive internal/ircc.Client.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/horgh/ircrelay/internal/config"
	"github.com/horgh/ircrelay/internal/ircc"
)

// consoleUI is the simplest possible implementation of ircc.UI.
type consoleUI struct {
	in *bufio.Scanner
}

func (u *consoleUI) ReadLine() (string, error) {
	if !u.in.Scan() {
		if err := u.in.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("input closed")
	}
	return u.in.Text(), nil
}

func (u *consoleUI) Display(line string) {
	fmt.Println(line)
}

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

	cfg, err := config.LoadClientConfig(configPath)
	if err != nil {
		log.Fatalf("loading configuration: %s", err)
	}

	ui := &consoleUI{in: bufio.NewScanner(os.Stdin)}
	c := ircc.New(ui, cfg.ServerAddress, cfg.ServerPort, cfg.Nick)

	if err := c.Run(); err != nil {
		log.Printf("session ended: %s", err)
	}
}
