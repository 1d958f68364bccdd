package main

import (
	"time"

	flags "github.com/jessevdk/go-flags"
)

// config collects the command-line knobs for the demo harness, in the same
// plain-struct-plus-go-flags-tags shape the teacher's own daemon config
// uses.
type config struct {
	NumNodes  int           `long:"num-nodes" description:"number of simulated session members" default:"7"`
	Forker    int           `long:"forker" description:"node index that equivocates" default:"6"`
	Alerter   int           `long:"alerter" description:"node index that raises the own alert" default:"0"`
	SessionID uint64        `long:"session-id" description:"session identifier all nodes share" default:"1"`
	BaseDelay time.Duration `long:"base-delay" description:"RMC doubling-delay scheduler base interval" default:"50ms"`
	WorkDir   string        `long:"workdir" description:"directory for per-node backup logs; a temp dir is used if empty"`
}

func loadConfig() (*config, error) {
	cfg := &config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		return nil, err
	}
	return cfg, nil
}
