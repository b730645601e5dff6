// Command webserv runs a single-process HTTP/1.1 origin server from a
// JSON configuration file (spec.md §6 / C11).
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webserv-go/webserv/config"
	"github.com/webserv-go/webserv/logging"
	"github.com/webserv-go/webserv/mux"
	"github.com/webserv-go/webserv/vhost"
)

// Exit codes per spec.md §6: 0 clean shutdown, 1 config error, 2 runtime
// (listen/accept) error.
const (
	exitOK          = 0
	exitConfigError = 1
	exitRuntimeErr  = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("webserv", flag.ContinueOnError)
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	validateOnly := fs.Bool("validate-only", false, "parse and validate the config file, then exit")
	if err := fs.Parse(args); err != nil {
		return exitConfigError
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: webserv [-log-level L] [-validate-only] <config.json>")
		return exitConfigError
	}
	configPath := fs.Arg(0)

	logger, err := logging.New(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "webserv:", err)
		return exitConfigError
	}

	root, err := config.Load(configPath)
	if err != nil {
		logger.WithError(err).Error("config invalid")
		return exitConfigError
	}
	if *validateOnly {
		logger.Info("config is valid")
		return exitOK
	}

	servers := make([]*config.VirtualServer, len(root.Servers))
	for i := range root.Servers {
		servers[i] = &root.Servers[i]
	}
	vhosts := vhost.Build(servers)

	m, err := mux.New(vhosts, 30*time.Second, logger.WithField("component", "mux"))
	if err != nil {
		logger.WithError(err).Error("multiplexer init failed")
		return exitRuntimeErr
	}
	if err := m.Listen(vhosts.Endpoints()); err != nil {
		logger.WithError(err).Error("listen failed")
		return exitRuntimeErr
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE)
	go func() {
		<-sig
		logger.Info("shutdown requested")
		m.Stop()
	}()

	if err := m.Run(); err != nil {
		logger.WithError(err).Error("server loop exited with error")
		return exitRuntimeErr
	}
	logger.Info("server stopped")
	return exitOK
}
