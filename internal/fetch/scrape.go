package fetch

import (
	"context"
	"time"
)

// ActionType enumerates the dynamic-page actions a scrape request may carry.
type ActionType string

const (
	ActionWait   ActionType = "wait"
	ActionScroll ActionType = "scroll"
	ActionClick  ActionType = "click"
)

// Action is one ordered step applied to a dynamic page before its content is
// read.
type Action struct {
	Type   ActionType
	Params map[string]string
}

// ScrapeOptions mirror the external scraping API's request surface: output
// formats, CSS selector filters, an optional wait condition and an ordered
// action list for dynamic pages.
type ScrapeOptions struct {
	Formats          []string
	IncludeSelectors []string
	ExcludeSelectors []string
	WaitFor          string
	Timeout          time.Duration
	Actions          []Action
}

// Actuator executes dynamic-page actions for a URL before the body is read.
// The default actuator is a no-op: plain HTTP fetching cannot run scripts, so
// actions are declarative hints honored only by actuators that drive a real
// browser or an external scraping service.
type Actuator interface {
	Act(ctx context.Context, url string, actions []Action) error
}

type noopActuator struct{}

func (noopActuator) Act(context.Context, string, []Action) error { return nil }

// Scrape fetches a URL with the given options. When opts.Actions is non-empty
// the given actuator (or the no-op default when nil) runs first; a per-scrape
// timeout overrides the client's per-request timeout when set.
func (c *Client) Scrape(ctx context.Context, url string, opts ScrapeOptions, actuator Actuator) ([]byte, string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	if actuator == nil {
		actuator = noopActuator{}
	}
	if len(opts.Actions) > 0 {
		if err := actuator.Act(ctx, url, opts.Actions); err != nil {
			return nil, "", err
		}
	}
	return c.Get(ctx, url)
}
