package ratelimit

import (
	"errors"
	"time"

	"github.com/Proton-105/storefront-bot/pkg/config"
)

// Rules encapsulates configured rate limits and helper methods.
type Rules struct {
	config config.RateLimitConfig
	exempt map[int64]struct{}
}

// NewRules constructs rate limiting rules. Whitelisted users and the given
// admins bypass limits.
func NewRules(cfg config.RateLimitConfig, admins ...int64) *Rules {
	exempt := make(map[int64]struct{}, len(cfg.Whitelist)+len(admins))
	for _, id := range cfg.Whitelist {
		exempt[id] = struct{}{}
	}
	for _, id := range admins {
		exempt[id] = struct{}{}
	}
	return &Rules{config: cfg, exempt: exempt}
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	_, ok := r.exempt[userID]
	return ok
}

// PerUser returns the per-user rate limiting rule.
func (r *Rules) PerUser() (int, time.Duration, error) {
	return parseRule(r.config.PerUser)
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Window == "" {
		return rule.Limit, 0, errors.New("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	return rule.Limit, window, nil
}
