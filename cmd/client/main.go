// Package main implements a command line client for the Driftmail REST API
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/google/subcommands"
)

var host = flag.String("host", "localhost", "host/IP of Driftmail server")
var port = flag.Uint("port", 9100, "HTTP port of Driftmail server")

func main() {
	// Important top-level flags
	subcommands.ImportantFlag("host")
	subcommands.ImportantFlag("port")

	// Setup standard helpers
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	// Setup my commands
	subcommands.Register(&accountsCmd{}, "")
	subcommands.Register(&listCmd{}, "")
	subcommands.Register(&sendCmd{}, "")
	subcommands.Register(&syncCmd{}, "")
	subcommands.Register(&failuresCmd{}, "")
	subcommands.Register(&watchCmd{}, "")

	// Parse and execute
	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}

func baseURL() string {
	return "http://" + net.JoinHostPort(*host, strconv.FormatUint(uint64(*port), 10))
}

func fatal(msg string, err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	return subcommands.ExitFailure
}

func usage(msg string) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, msg)
	return subcommands.ExitUsageError
}
