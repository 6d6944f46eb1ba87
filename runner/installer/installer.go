// Package installer downloads the playwright driver and the chromium
// build the worker runs on. It exists so container builds can bake the
// browser into the image ahead of the first scrape.
package installer

import (
	"context"
	"fmt"

	"github.com/bullionwatch/scraper/browser"
	"github.com/bullionwatch/scraper/runner"
)

type installRunner struct{}

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeInstallPlaywright {
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}

	return &installRunner{}, nil
}

func (r *installRunner) Run(context.Context) error {
	return browser.Install()
}

func (r *installRunner) Close(context.Context) error { return nil }
