// Package config loads the fortune-bot service configuration from the
// environment. Required secrets fail fast at boot, not at first request.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/example/fortune-bot/internal/commerce"
)

type LineConfig struct {
	// ChannelSecret signs inbound webhooks. Required.
	ChannelSecret string
	// ChannelToken authenticates reply delivery. Required.
	ChannelToken string
}

type CommerceConfig struct {
	BaseURL    string
	AuthMode   commerce.AuthMode
	Token      string
	HeaderName string
	PlanRules  commerce.PlanRules
}

type OracleConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	TopP        float64
	MaxTokens   int
}

type PolicyConfig struct {
	SubscriptionReverify bool
	DayPassDuration      time.Duration
	HistoryMaxTurns      int
	HistoryTTL           time.Duration
	UsageTTL             time.Duration
}

type StorageConfig struct {
	RedisDSN    string
	DatabaseURL string
}

type Config struct {
	Line     LineConfig
	Commerce CommerceConfig
	Oracle   OracleConfig
	Policy   PolicyConfig
	Storage  StorageConfig
	// AdminJWTSecret guards the diagnostic endpoints; empty disables them.
	AdminJWTSecret string
	NATSURL        string
	PostHogAPIKey  string
	PostHogHost    string
}

func Load() (Config, error) {
	cfg := Config{
		Line: LineConfig{
			ChannelSecret: strings.TrimSpace(os.Getenv("LINE_CHANNEL_SECRET")),
			ChannelToken:  strings.TrimSpace(os.Getenv("LINE_CHANNEL_TOKEN")),
		},
		Commerce: CommerceConfig{
			BaseURL:    strings.TrimSpace(os.Getenv("COMMERCE_API_BASE")),
			AuthMode:   commerce.AuthMode(strings.TrimSpace(os.Getenv("COMMERCE_AUTH_MODE"))),
			Token:      strings.TrimSpace(os.Getenv("COMMERCE_API_TOKEN")),
			HeaderName: strings.TrimSpace(os.Getenv("COMMERCE_AUTH_HEADER")),
		},
		Oracle: OracleConfig{
			BaseURL:     envDefault("ORACLE_API_BASE", "https://api.openai.com/v1"),
			APIKey:      strings.TrimSpace(os.Getenv("ORACLE_API_KEY")),
			Model:       strings.TrimSpace(os.Getenv("ORACLE_MODEL")),
			Temperature: envFloat("ORACLE_TEMPERATURE", 0),
			TopP:        envFloat("ORACLE_TOP_P", 0),
			MaxTokens:   envInt("ORACLE_MAX_TOKENS", 0),
		},
		Policy: PolicyConfig{
			SubscriptionReverify: envBool("SUBSCRIPTION_REVERIFY", true),
			DayPassDuration:      time.Duration(envInt("DAYPASS_HOURS", 24)) * time.Hour,
			HistoryMaxTurns:      envInt("HISTORY_MAX_TURNS", 10),
			HistoryTTL:           envDuration("HISTORY_TTL", 72*time.Hour),
			UsageTTL:             envDuration("USAGE_TTL", 180*24*time.Hour),
		},
		Storage: StorageConfig{
			RedisDSN:    strings.TrimSpace(os.Getenv("REDIS_DSN")),
			DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		},
		AdminJWTSecret: strings.TrimSpace(os.Getenv("ADMIN_JWT_SECRET")),
		NATSURL:        strings.TrimSpace(os.Getenv("NATS_URL")),
		PostHogAPIKey:  strings.TrimSpace(os.Getenv("POSTHOG_API_KEY")),
		PostHogHost:    envDefault("POSTHOG_HOST", "https://app.posthog.com"),
	}

	if cfg.Line.ChannelSecret == "" {
		return Config{}, errors.New("LINE_CHANNEL_SECRET is required")
	}
	if cfg.Line.ChannelToken == "" {
		return Config{}, errors.New("LINE_CHANNEL_TOKEN is required")
	}
	if cfg.Commerce.BaseURL == "" {
		return Config{}, errors.New("COMMERCE_API_BASE is required")
	}
	if cfg.Oracle.APIKey == "" {
		return Config{}, errors.New("ORACLE_API_KEY is required")
	}
	if m := cfg.Commerce.AuthMode; m != "" && m != commerce.AuthBearer && m != commerce.AuthHeader {
		return Config{}, fmt.Errorf("COMMERCE_AUTH_MODE must be %q or %q", commerce.AuthBearer, commerce.AuthHeader)
	}

	rules := commerce.DefaultPlanRules()
	if err := parsePlanProducts(os.Getenv("PLAN_PRODUCTS"), rules.ProductIDs); err != nil {
		return Config{}, err
	}
	bands, err := parsePriceBands(os.Getenv("PLAN_PRICE_BANDS"))
	if err != nil {
		return Config{}, err
	}
	rules.PriceBands = bands
	cfg.Commerce.PlanRules = rules

	return cfg, nil
}

// parsePlanProducts reads "sku:plan,sku:plan" pairs into the product table.
func parsePlanProducts(raw string, dst map[string]commerce.PlanKind) error {
	for _, pair := range splitList(raw) {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("PLAN_PRODUCTS: malformed entry %q", pair)
		}
		kind, err := parsePlanKind(parts[1])
		if err != nil {
			return fmt.Errorf("PLAN_PRODUCTS: %w", err)
		}
		dst[strings.TrimSpace(parts[0])] = kind
	}
	return nil
}

// parsePriceBands reads "min-max:plan" entries; an empty max means open-ended.
func parsePriceBands(raw string) ([]commerce.PriceBand, error) {
	var bands []commerce.PriceBand
	for _, entry := range splitList(raw) {
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("PLAN_PRICE_BANDS: malformed entry %q", entry)
		}
		kind, err := parsePlanKind(parts[1])
		if err != nil {
			return nil, fmt.Errorf("PLAN_PRICE_BANDS: %w", err)
		}
		bounds := strings.SplitN(parts[0], "-", 2)
		if len(bounds) != 2 {
			return nil, fmt.Errorf("PLAN_PRICE_BANDS: range %q must be min-max", parts[0])
		}
		band := commerce.PriceBand{Kind: kind}
		if band.Min, err = parseBound(bounds[0], 0); err != nil {
			return nil, fmt.Errorf("PLAN_PRICE_BANDS: %w", err)
		}
		if band.Max, err = parseBound(bounds[1], 0); err != nil {
			return nil, fmt.Errorf("PLAN_PRICE_BANDS: %w", err)
		}
		bands = append(bands, band)
	}
	return bands, nil
}

func parsePlanKind(raw string) (commerce.PlanKind, error) {
	switch kind := commerce.PlanKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case commerce.PlanTrial, commerce.PlanDayPass, commerce.PlanSubscription:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown plan kind %q", raw)
	}
}

func parseBound(raw string, fallback float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("bad price bound %q", raw)
	}
	return f, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
