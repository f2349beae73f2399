// Package resolver maps URLs to the spider that should handle them, using
// the regexp route table from the configuration. It lets one entry point
// dispatch mixed feeds of site links without the caller knowing each site's
// scraping strategy.
package resolver

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/trombik/rokujo-collector/internal/config"
)

// Resolution names the spider and arguments for a URL.
type Resolution struct {
	Spider string
	Args   []string
}

// NoRouteError reports a URL no route matched.
type NoRouteError struct {
	URL string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no spider route matches %s", e.URL)
}

type route struct {
	patterns []*regexp.Regexp
	spider   string
	args     []string
}

// Resolver matches URLs against an ordered route table. The first matching
// pattern wins.
type Resolver struct {
	routes []route
	logger *slog.Logger
}

// New compiles the configured routes. An uncompilable pattern is an error
// at construction, not at resolution time.
func New(cfgRoutes []config.Route, logger *slog.Logger) (*Resolver, error) {
	r := &Resolver{logger: logger.With("component", "resolver")}

	for i, cr := range cfgRoutes {
		rt := route{spider: cr.Spider, args: cr.Args}
		for _, p := range cr.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("route %d: pattern %q: %w", i, p, err)
			}
			rt.patterns = append(rt.patterns, re)
		}
		r.routes = append(r.routes, rt)
	}
	return r, nil
}

// Resolve returns the spider for a URL, or a NoRouteError.
func (r *Resolver) Resolve(rawURL string) (*Resolution, error) {
	for _, rt := range r.routes {
		for _, re := range rt.patterns {
			if re.MatchString(rawURL) {
				r.logger.Debug("route matched", "url", rawURL, "spider", rt.spider)
				return &Resolution{Spider: rt.spider, Args: rt.args}, nil
			}
		}
	}
	return nil, &NoRouteError{URL: rawURL}
}

// Len returns the number of routes.
func (r *Resolver) Len() int {
	return len(r.routes)
}
