package config

// OtelConfig holds OpenTelemetry trace export configuration.
//
// Traces are exported over OTLP HTTP to a local collector agent
// (default: localhost:4318). See internal/observability for setup.
type OtelConfig struct {
	// Endpoint is the OTLP HTTP collector endpoint (default: localhost:4318)
	Endpoint string `mapstructure:"endpoint"`
	// Environment is the deployment environment tag (default: dev)
	Environment string `mapstructure:"environment"`
	// ServiceName is the service name reported on spans (default: veritail)
	ServiceName string `mapstructure:"service_name"`
	// Enabled turns trace export on. Disabled by default so local
	// development does not require a running collector.
	Enabled bool `mapstructure:"enabled"`
}
