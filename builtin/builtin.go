// Package builtin provides the default implementations registered under the
// reserved "builtin:" prefix: timers, clock and time zone queries, a random
// seed and an HTTP client.
package builtin

import (
	"context"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/Swind/go-task-port/core"
)

// Bare names of the default builtins. The registry stores them as
// core.BuiltinName(name).
const (
	Sleep          = "sleep"
	TimeNow        = "timeNow"
	TimeZoneOffset = "timeZoneOffset"
	TimeZoneName   = "timeZoneName"
	RandomSeed     = "randomSeed"
	HTTP           = "http"
)

// maxSeed keeps seeds within the integer range every wire codec and JSON
// consumer handles exactly.
const maxSeed = 1 << 53

type config struct {
	now            func() time.Time
	location       *time.Location
	seed           func() int64
	client         *http.Client
	limiter        *rate.Limiter
	defaultTimeout time.Duration
	logger         core.Logger
}

// Option configures Defaults.
type Option func(*config)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithLocation sets the zone reported by the time zone builtins.
// Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(c *config) { c.location = loc }
}

// WithSeedSource replaces the random seed generator.
func WithSeedSource(seed func() int64) Option {
	return func(c *config) { c.seed = seed }
}

// WithHTTPClient sets the client used by the http builtin.
func WithHTTPClient(client *http.Client) Option {
	return func(c *config) { c.client = client }
}

// WithRateLimit throttles outgoing HTTP requests. Time spent waiting for the
// limiter counts against the request timeout.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *config) {
		if limit > 0 {
			c.limiter = rate.NewLimiter(limit, burst)
		}
	}
}

// WithLimiter shares l between several Defaults sets, e.g. every
// connection of a server.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *config) { c.limiter = l }
}

// WithDefaultHTTPTimeout applies d to requests that carry no timeout.
// Zero means no timeout.
func WithDefaultHTTPTimeout(d time.Duration) Option {
	return func(c *config) { c.defaultTimeout = d }
}

// WithLogger sets the logger used for adapter-level debug output.
func WithLogger(l core.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Defaults returns the default builtins keyed by bare name, ready to be
// passed to core.BuildRegistry.
func Defaults(opts ...Option) map[string]core.Implementation {
	cfg := config{
		now:      time.Now,
		location: time.Local,
		seed:     func() int64 { return rand.Int64N(maxSeed) },
		client:   http.DefaultClient,
		logger:   core.NewNoOpLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return map[string]core.Implementation{
		Sleep:          core.Typed(sleep),
		TimeNow:        core.ImplementationFunc(cfg.timeNow),
		TimeZoneOffset: core.ImplementationFunc(cfg.timeZoneOffset),
		TimeZoneName:   core.ImplementationFunc(cfg.timeZoneName),
		RandomSeed:     core.ImplementationFunc(cfg.randomSeed),
		HTTP:           core.Typed(newHTTPAdapter(&cfg).Do),
	}
}

// sleep waits ms milliseconds and returns nil. It returns early with the
// context error when the runner stops.
func sleep(ctx context.Context, ms float64) (any, error) {
	if ms <= 0 {
		return nil, nil
	}
	timer := time.NewTimer(time.Duration(ms * float64(time.Millisecond)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *config) timeNow(ctx context.Context, _ any) (any, error) {
	return c.now().UnixMilli(), nil
}

// timeZoneOffset returns minutes east of UTC.
func (c *config) timeZoneOffset(ctx context.Context, _ any) (any, error) {
	_, offset := c.now().In(c.location).Zone()
	return offset / 60, nil
}

// timeZoneName returns the IANA name of the zone, its abbreviation when the
// name cannot be resolved, or the offset in minutes west of UTC. The fallback
// has the opposite sign of timeZoneOffset.
func (c *config) timeZoneName(ctx context.Context, _ any) (any, error) {
	if name := ianaName(c.location); name != "" {
		return name, nil
	}
	abbrev, offset := c.now().In(c.location).Zone()
	if abbrev != "" && !isNumericAbbrev(abbrev) {
		return abbrev, nil
	}
	return -offset / 60, nil
}

func (c *config) randomSeed(ctx context.Context, _ any) (any, error) {
	return c.seed(), nil
}

func ianaName(loc *time.Location) string {
	if loc != time.Local {
		return loc.String()
	}
	if tz := os.Getenv("TZ"); tz != "" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz
		}
	}
	return ""
}

// isNumericAbbrev reports abbreviations such as "+03" or "-0530" that the
// tz database uses for zones without a letter abbreviation.
func isNumericAbbrev(abbrev string) bool {
	return abbrev[0] == '+' || abbrev[0] == '-'
}
