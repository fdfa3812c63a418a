// Command catbox runs one P10/RFC1459 core server process: it loads
// configuration, opens the listening socket, and runs the single event
// loop that owns the registry for the life of the process.
package main

import (
	"bufio"
	"log"
	"net"
	"os"
	"strings"

	"github.com/horgh/catbox/internal/config"
	"github.com/horgh/catbox/internal/numeric"
)

func main() {
	args := getArgs()
	if args == nil {
		os.Exit(1)
	}

	cfg, err := config.Load(args.ConfigFile)
	if err != nil {
		log.Fatalf("unable to load configuration: %s", err)
	}

	numericStr := cfg.Numeric
	if args.SID != "" {
		numericStr = args.SID
	}
	if args.ServerName != "" {
		cfg.ServerName = args.ServerName
	}

	selfNum, err := numeric.DecodeServer(numericStr)
	if err != nil {
		log.Fatalf("invalid server numeric %q: %s", numericStr, err)
	}

	cb := NewCatbox(cfg, selfNum)

	if cfg.JupeFile != "" {
		if err := loadJupes(cb, cfg.JupeFile); err != nil {
			log.Printf("unable to load jupe file: %s", err)
		}
	}

	ln, err := listen(cfg, args.ListenFD)
	if err != nil {
		log.Fatalf("unable to listen: %s", err)
	}

	go cb.AcceptLoop(ln)

	for _, link := range cfg.Servers {
		go cb.connectOut(link)
	}

	cb.Run()
}

// loadJupes reads administratively reserved server names and nicknames
// (spec §4.11's jupe list), one per line, blank lines and "#"-prefixed
// comments ignored.
func loadJupes(cb *Catbox, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cb.Jupes[strings.ToLower(line)] = struct{}{}
	}
	return scanner.Err()
}

func listen(cfg *config.Config, fd int) (net.Listener, error) {
	if fd >= 0 {
		f := os.NewFile(uintptr(fd), "listener")
		return net.FileListener(f)
	}
	addr := net.JoinHostPort(cfg.ListenHost, cfg.ListenPort)
	return net.Listen("tcp", addr)
}
