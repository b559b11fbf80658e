package environment

// Environment represents the build/deployment environment of the embedding app.
// It gates development-only behavior such as the access-gate test override.
type Environment string

const (
	// Development for local and debug builds.
	Development Environment = "development"
	// Staging for pre-release builds.
	Staging Environment = "staging"
	// Production for release builds.
	Production Environment = "production"
)

// Parse normalizes a raw environment string, defaulting to production so an
// unset or unknown value never enables development behavior.
func Parse(s string) Environment {
	switch s {
	case string(Development), "dev", "local":
		return Development
	case string(Staging), "stage":
		return Staging
	default:
		return Production
	}
}

// IsProduction reports whether e is the production environment.
func (e Environment) IsProduction() bool {
	return e == Production
}

// IsDevelopment reports whether e is the development environment.
func (e Environment) IsDevelopment() bool {
	return e == Development
}

// IsStaging reports whether e is the staging environment.
func (e Environment) IsStaging() bool {
	return e == Staging
}
