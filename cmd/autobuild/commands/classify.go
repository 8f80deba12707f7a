package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/melih/lighthouse-autobuild/internal/core/classify"
	"github.com/melih/lighthouse-autobuild/internal/core/domain"
)

// ClassifyCmd implements the 'classify' command.
type ClassifyCmd struct {
	File string `arg:"" optional:"" help:"Build output file; stdin when empty or -"`
}

func (c *ClassifyCmd) Run(_ *Global) error {
	var (
		raw []byte
		err error
	)
	if c.File == "" || c.File == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(c.File) // #nosec G304 -- operator-supplied path
	}
	if err != nil {
		return fmt.Errorf("read build output: %w", err)
	}
	errs := classify.Classify(string(raw))
	if errs == nil {
		errs = []domain.ClassifiedError{}
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(errs)
}
