// Package config provides configuration utilities for the application.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/ecomstack/shelfsort/internal/catalog"
	"github.com/ecomstack/shelfsort/internal/common"
	"github.com/ecomstack/shelfsort/internal/engine"
	"github.com/ecomstack/shelfsort/internal/llm"
)

// LoadCatalogConfig loads storefront API settings from Viper and
// environment variables. It follows this precedence:
// 1. Viper configuration (from config file or SHELFSORT_ env vars)
// 2. Direct environment variables (SHOPIFY_*)
func LoadCatalogConfig() (catalog.Config, error) {
	cfg := catalog.Config{
		ShopDomain:  viper.GetString("catalog.shop_domain"),
		AccessToken: viper.GetString("catalog.access_token"),
		APIVersion:  viper.GetString("catalog.api_version"),
		PageDelay:   viper.GetDuration("catalog.page_delay"),
	}

	if cfg.ShopDomain == "" {
		cfg.ShopDomain = os.Getenv("SHOPIFY_SHOP_DOMAIN")
	}
	if cfg.AccessToken == "" {
		cfg.AccessToken = os.Getenv("SHOPIFY_ACCESS_TOKEN")
	}

	if cfg.ShopDomain == "" {
		return cfg, fmt.Errorf("%w: catalog.shop_domain (or SHOPIFY_SHOP_DOMAIN)", common.ErrMissingConfig)
	}
	if cfg.AccessToken == "" {
		return cfg, fmt.Errorf("%w: catalog.access_token (or SHOPIFY_ACCESS_TOKEN)", common.ErrMissingConfig)
	}

	return cfg, nil
}

// LoadLLMConfig loads classifier settings from Viper and environment
// variables. The API key falls back to OPENAI_API_KEY.
func LoadLLMConfig() (llm.Config, error) {
	cfg := llm.Config{
		Provider:          viper.GetString("llm.provider"),
		APIKey:            viper.GetString("llm.api_key"),
		Model:             viper.GetString("llm.model"),
		MaxRetries:        viper.GetInt("llm.max_retries"),
		BaseDelay:         viper.GetDuration("llm.base_delay"),
		RequestTimeout:    viper.GetDuration("llm.request_timeout"),
		MaxCandidates:     viper.GetInt("llm.max_candidates"),
		MaxDescriptionLen: viper.GetInt("llm.max_description_length"),
		RateLimit:         viper.GetInt("llm.rate_limit"),
		Temperature:       viper.GetFloat64("llm.temperature"),
		MaxTokens:         viper.GetInt("llm.max_tokens"),
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return cfg, fmt.Errorf("%w: llm.api_key (or OPENAI_API_KEY)", common.ErrMissingConfig)
	}

	return cfg, nil
}

// LoadEngineConfig loads pipeline tuning knobs; unset values fall back
// to the engine defaults.
func LoadEngineConfig() engine.Config {
	return engine.Config{
		Separator:        viper.GetString("pipeline.separator"),
		BatchSize:        viper.GetInt("pipeline.batch_size"),
		MaxRetries:       viper.GetInt("pipeline.max_retries"),
		MaxL3:            viper.GetInt("pipeline.max_level3"),
		ItemDelay:        viper.GetDuration("pipeline.item_delay"),
		ApplyConfidence:  viper.GetFloat64("pipeline.apply_confidence"),
		MaxIngestDescLen: viper.GetInt("pipeline.max_description_length"),
		CleanupExcess:    viper.GetBool("pipeline.cleanup_excess"),
	}
}

// DatabasePath returns the configured SQLite path with ~ and
// environment variables expanded.
func DatabasePath() string {
	path := viper.GetString("database.path")
	if path == "" {
		path = "$HOME/.local/share/shelfsort/shelfsort.db"
	}
	return ExpandPath(path)
}

// ScanWindow returns how far back product scans look by default.
func ScanWindow() time.Duration {
	if d := viper.GetDuration("pipeline.scan_window"); d > 0 {
		return d
	}
	return 24 * time.Hour
}
