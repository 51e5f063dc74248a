package telemetry

// Exporters.
const (
	ExporterNone   = "none"
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// Config holds configuration for the tracer
type Config struct {
	ServiceName    string `yaml:"service_name" json:"service_name"`
	ServiceVersion string `yaml:"service_version" json:"service_version"`
	Environment    string `yaml:"environment" json:"environment"`

	// Exporter selects where spans go: "otlp", "stdout" or "none".
	Exporter string `yaml:"exporter" json:"exporter"`

	// Endpoint is the OTLP/HTTP collector host:port.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Insecure bool   `yaml:"insecure" json:"insecure"`

	// SampleRate is the fraction of traces to sample (0.0 to 1.0)
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`
}

// DefaultConfig disables tracing.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "iamgate",
		ServiceVersion: "dev",
		Environment:    "development",
		Exporter:       ExporterNone,
		SampleRate:     1.0,
	}
}

// Enabled reports whether spans are exported anywhere.
func (c Config) Enabled() bool {
	return c.Exporter != "" && c.Exporter != ExporterNone
}
