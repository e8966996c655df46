package ratelimit

// TierConfig defines rate limits for each trigger source tier
type TierConfig struct {
	Tier          SourceTier
	Limit         int64  // Requests allowed per window
	WindowSeconds int    // Time window in seconds
	Description   string // Human-readable description
}

// Default tier configurations. Inbound webhook/GitHub/Slack deliveries come
// from third parties and retry aggressively on 5xx, so they get a tighter
// budget than manual/cron triggers that originate from trusted operators.
var DefaultTierConfigs = map[SourceTier]TierConfig{
	TierTrusted: {
		Tier:          TierTrusted,
		Limit:         120,
		WindowSeconds: 60,
		Description:   "manual/cron triggers - 120 dispatches/minute",
	},
	TierExternal: {
		Tier:          TierExternal,
		Limit:         60,
		WindowSeconds: 60,
		Description:   "webhook/github/slack deliveries - 60 dispatches/minute",
	},
	TierPolled: {
		Tier:          TierPolled,
		Limit:         10,
		WindowSeconds: 60,
		Description:   "email polling - 10 dispatches/minute",
	},
}

// GlobalConfig contains global service-wide limits
type GlobalConfig struct {
	Limit         int64 // Total requests per window (all users)
	WindowSeconds int   // Time window
}

// Default global configuration
var DefaultGlobalConfig = GlobalConfig{
	Limit:         600,
	WindowSeconds: 60,
}

// GetLimitForTier returns the rate limit for a given tier
func GetLimitForTier(tier SourceTier) int64 {
	if config, exists := DefaultTierConfigs[tier]; exists {
		return config.Limit
	}
	return DefaultTierConfigs[TierExternal].Limit
}

// GetWindowForTier returns the time window for a given tier
func GetWindowForTier(tier SourceTier) int {
	if config, exists := DefaultTierConfigs[tier]; exists {
		return config.WindowSeconds
	}
	return DefaultTierConfigs[TierExternal].WindowSeconds
}

// GetAllTiers returns all configured tiers for documentation/API responses
func GetAllTiers() []TierConfig {
	return []TierConfig{
		DefaultTierConfigs[TierTrusted],
		DefaultTierConfigs[TierExternal],
		DefaultTierConfigs[TierPolled],
	}
}
