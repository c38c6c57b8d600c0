package telemetry

import "testing"

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default is valid", mutate: func(c *Config) {}},
		{name: "production is valid", mutate: func(c *Config) { *c = *ProductionConfig() }},
		{name: "development is valid", mutate: func(c *Config) { *c = *DevelopmentConfig() }},
		{
			name:    "missing service name",
			mutate:  func(c *Config) { c.ServiceName = "" },
			wantErr: true,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: true,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name: "bad exporter when tracing enabled",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "carrier-pigeon"
			},
			wantErr: true,
		},
		{
			name:    "sampling rate out of range",
			mutate:  func(c *Config) { c.Tracing.SamplingRate = 1.5 },
			wantErr: true,
		},
		{
			name: "metrics enabled without address",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddress = ""
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNoopMetricsAreSafe(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	// None of these should panic on the no-op instance.
	m.RunStarted()
	m.RunCompleted("passed", 0)
	m.ViolationFound("r", "error")
	m.ResourcesEvaluated(3)
	m.SetRulesLoaded(1)
	m.RuleReload("ok")
	m.ChangeSetParsed("ok")
}
