package main

import "flag"

// Options holds CLI options for the ping tool.
type Options struct {
	ConfigPath string
	Endpoint   string
	Count      int
	PayloadLen int
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("cryptipc-ping", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.Endpoint, "endpoint", "", "Daemon endpoint (overrides config)")
	fs.IntVar(&opts.Count, "n", 4, "Number of round trips")
	fs.IntVar(&opts.PayloadLen, "payload", 32, "Padding bytes per ping")
	_ = fs.Parse(args)
	return opts
}
