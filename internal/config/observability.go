package config

// ObservabilityConfig represents observability configuration.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
	Tracing TracingConfig `yaml:"tracing" json:"tracing"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// TracingConfig represents tracing configuration.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

func (o *ObservabilityConfig) applyDefaults() {
	if o.Metrics.Path == "" {
		o.Metrics.Path = DefaultMetricsPath
	}
	if o.Tracing.ServiceName == "" {
		o.Tracing.ServiceName = DefaultServiceName
	}
	if o.Tracing.Enabled && o.Tracing.SamplingRate == 0 {
		o.Tracing.SamplingRate = 1
	}
	if o.Logging.Level == "" {
		o.Logging.Level = DefaultLogLevel
	}
	if o.Logging.Format == "" {
		o.Logging.Format = DefaultLogFormat
	}
	if o.Logging.Output == "" {
		o.Logging.Output = DefaultLogOutput
	}
}
