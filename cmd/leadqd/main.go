package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/onsitehq/leadq/internal/cli"
)

func main() {
	addr := flag.String("addr", os.Getenv("LEADQD_ADDR"), "Listen address (default from config, 127.0.0.1:8765)")
	unixPath := flag.String("unix", os.Getenv("LEADQD_UNIX"), "Listen on unix socket path")
	token := flag.String("token", os.Getenv("LEADQD_TOKEN"), "Bearer token required on every request (default from config)")
	dbPath := flag.String("db", "", "Database path override (defaults to config)")
	flag.Parse()

	opts := cli.DaemonOptions{
		Addr:   *addr,
		Unix:   *unixPath,
		Token:  *token,
		DBPath: *dbPath,
	}

	if err := cli.ServeDaemon(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
