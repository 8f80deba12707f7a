package commands

import (
	"context"
	"fmt"
)

// ProbeCmd implements the 'probe' command.
type ProbeCmd struct{}

func (p *ProbeCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.load(g)
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg, g.Logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.prober.Probe(context.Background()); err != nil {
		return err
	}
	fmt.Printf("%s backend ready\n", cfg.Builder.Backend)
	return nil
}
