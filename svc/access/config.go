package access

import "time"

// Config carries the engine's environment-driven settings.
type Config struct {
	// Environment gates development-only behavior ("development",
	// "staging", "production").
	Environment string `env:"GATEKIT_ENV" envDefault:"production"`

	// ServiceName tags log records.
	ServiceName string `env:"GATEKIT_SERVICE_NAME" envDefault:"gatekit"`

	// PromoCatalogPath points at a local YAML promo catalog. Empty means
	// no local catalog file.
	PromoCatalogPath string `env:"GATEKIT_PROMO_CATALOG_PATH"`

	// PromoCatalogURL points at a remote JSON promo catalog used for
	// background refreshes. Empty disables remote refresh.
	PromoCatalogURL string `env:"GATEKIT_PROMO_CATALOG_URL"`

	// PromoStaleAfter is how old the cached catalog may grow before a
	// validation kicks a background refresh.
	PromoStaleAfter time.Duration `env:"GATEKIT_PROMO_STALE_AFTER" envDefault:"1h"`

	// PromoRefreshInterval drives the periodic catalog refresh loop.
	// Zero disables the loop; stale-triggered refresh still applies.
	PromoRefreshInterval time.Duration `env:"GATEKIT_PROMO_REFRESH_INTERVAL" envDefault:"0"`

	// PromoRemoteTimeout bounds a single remote catalog fetch.
	PromoRemoteTimeout time.Duration `env:"GATEKIT_PROMO_REMOTE_TIMEOUT" envDefault:"5s"`
}
