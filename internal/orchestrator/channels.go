package orchestrator

import (
	"context"
	"fmt"

	"credkeeper/internal/browser"
	"credkeeper/internal/config"
	"credkeeper/internal/extract"
	"credkeeper/internal/flow"
)

// FlowChannel acquires a credential by driving the browser login flow.
// Each Acquire builds a fresh page and flow manager; flow state is
// never reused across attempts.
type FlowChannel struct {
	Cfg      *config.UserConfig
	Prompter flow.Prompter
	Params   flow.Params

	// NewPage overrides the browser backend, for tests.
	NewPage func() flow.Page
}

func (c *FlowChannel) Acquire(ctx context.Context) (Acquired, error) {
	newPage := c.NewPage
	if newPage == nil {
		newPage = func() flow.Page { return browser.NewSession(c.Cfg.Browser) }
	}

	m := flow.New(c.Cfg.Flow, newPage(), c.Prompter)
	res := m.Run(ctx, c.Params)
	switch res.Outcome {
	case flow.OutcomeSuccess:
		return Acquired{Credential: res.Credential, Email: res.Email}, nil
	case flow.OutcomeCancelled:
		return Acquired{}, res.Err
	default:
		return Acquired{}, res.Err
	}
}

// ExtractChannel acquires a credential through the local extraction
// server. Announce tells the operator where to point their browser.
type ExtractChannel struct {
	Cfg      *config.ExtractConfig
	Announce func(url string)
}

func (c *ExtractChannel) Acquire(ctx context.Context) (Acquired, error) {
	srv := extract.NewServer(c.Cfg)
	if err := srv.Start(); err != nil {
		return Acquired{}, fmt.Errorf("start extraction server: %w", err)
	}
	if c.Announce != nil {
		c.Announce(srv.URL())
	}

	credential, err := srv.Wait(ctx)
	if err != nil {
		return Acquired{}, err
	}
	return Acquired{Credential: credential}, nil
}
