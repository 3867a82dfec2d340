package tribute

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ndreyko/tributary/internal/pkg/env"
)

// DefaultIntentTTL bounds how long a reservation stays claimable.
const DefaultIntentTTL = 15 * time.Minute

// Logger is the narrow logging surface the processor needs. The default
// implementation forwards to fiber's log package; tests inject their own.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type fiberLogger struct{}

func (fiberLogger) Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func (fiberLogger) Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func (fiberLogger) Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }

// Config assembles everything the processor needs at construction. Plans and
// SecretKey are mandatory; the rest has defaults.
type Config struct {
	SecretKey      string
	Encoding       SignatureEncoding
	IntentTTL      time.Duration
	EnabledEvents  []EventName
	Plans          []Plan
	Publisher      Publisher
	PublishFailure PublishFailureMode
	Logger         Logger

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// EnabledEventsFor derives the allow-list from the donations toggle:
// subscription events are always on, donation events only when enabled.
func EnabledEventsFor(allowDonations bool) []EventName {
	events := []EventName{EventNewSubscription, EventCancelledSubscription}
	if allowDonations {
		events = append(events, EventNewDonation, EventRecurrentDonation, EventCancelledDonation)
	}
	return events
}

// ConfigFromEnv builds a Config from the process environment:
//
//	TRIBUTE_WEBHOOK_SECRET      HMAC secret (required)
//	TRIBUTE_SIGNATURE_ENCODING  hex (default) or base64
//	TRIBUTE_INTENT_TTL          Go duration, default 15m
//	TRIBUTE_ENABLED_EVENTS      comma list of event names, overrides the toggle
//	TRIBUTE_ALLOW_DONATIONS     true (default) or false
//	TRIBUTE_PLANS               inline JSON plan catalog
//	TRIBUTE_PLANS_FILE          path to a JSON plan catalog (used when inline is empty)
//	TRIBUTE_PUBLISH_FAILURE     fail (default) or log
//
// The publisher itself is wired by the caller (see internal/pkg/outbox).
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		SecretKey: env.GetEnv("TRIBUTE_WEBHOOK_SECRET", ""),
		Encoding:  SignatureEncoding(strings.ToLower(env.GetEnv("TRIBUTE_SIGNATURE_ENCODING", string(EncodingHex)))),
	}

	ttlRaw := env.GetEnv("TRIBUTE_INTENT_TTL", "")
	if ttlRaw != "" {
		ttl, err := time.ParseDuration(ttlRaw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: TRIBUTE_INTENT_TTL %q: %v", ErrConfiguration, ttlRaw, err)
		}
		cfg.IntentTTL = ttl
	}

	if list := strings.TrimSpace(env.GetEnv("TRIBUTE_ENABLED_EVENTS", "")); list != "" {
		for _, name := range strings.Split(list, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			cfg.EnabledEvents = append(cfg.EnabledEvents, EventName(name))
		}
	} else {
		allowDonations := env.GetEnv("TRIBUTE_ALLOW_DONATIONS", "true") != "false"
		cfg.EnabledEvents = EnabledEventsFor(allowDonations)
	}

	inline := env.GetEnv("TRIBUTE_PLANS", "")
	file := env.GetEnv("TRIBUTE_PLANS_FILE", "")
	switch {
	case inline != "":
		plans, err := ParsePlans(inline)
		if err != nil {
			return Config{}, err
		}
		cfg.Plans = plans
	case file != "":
		plans, err := LoadPlansFile(file)
		if err != nil {
			return Config{}, err
		}
		cfg.Plans = plans
	}

	if mode := env.GetEnv("TRIBUTE_PUBLISH_FAILURE", ""); mode != "" {
		cfg.PublishFailure = PublishFailureMode(strings.ToLower(mode))
	}
	return cfg, nil
}

// validate normalizes defaults and fails fast on malformed setup.
func (c *Config) validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("%w: missing webhook secret key", ErrConfiguration)
	}
	if c.Encoding == "" {
		c.Encoding = EncodingHex
	}
	if c.Encoding != EncodingHex && c.Encoding != EncodingBase64 {
		return fmt.Errorf("%w: unknown signature encoding %q", ErrConfiguration, c.Encoding)
	}
	if c.IntentTTL < 0 {
		return fmt.Errorf("%w: negative intent TTL", ErrConfiguration)
	}
	if c.IntentTTL == 0 {
		c.IntentTTL = DefaultIntentTTL
	}
	if len(c.EnabledEvents) == 0 {
		c.EnabledEvents = EnabledEventsFor(true)
	}
	for _, name := range c.EnabledEvents {
		if !knownEvent(name) {
			return fmt.Errorf("%w: unknown event %q in allow-list", ErrConfiguration, name)
		}
	}
	if c.PublishFailure == "" {
		c.PublishFailure = PublishFailureFail
	}
	if c.PublishFailure != PublishFailureFail && c.PublishFailure != PublishFailureLog {
		return fmt.Errorf("%w: unknown publish failure mode %q", ErrConfiguration, c.PublishFailure)
	}
	if c.Logger == nil {
		c.Logger = fiberLogger{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return nil
}

func knownEvent(name EventName) bool {
	for _, e := range AllEvents {
		if e == name {
			return true
		}
	}
	return false
}
