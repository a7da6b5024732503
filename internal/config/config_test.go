package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name   string
		check  func(*Config) bool
		expect string
	}{
		{
			name:   "default mode is worker",
			check:  func(c *Config) bool { return c.Mode == "worker" },
			expect: "worker",
		},
		{
			name:   "default host is 0.0.0.0",
			check:  func(c *Config) bool { return c.Host == "0.0.0.0" },
			expect: "0.0.0.0",
		},
		{
			name:   "default port is 8080",
			check:  func(c *Config) bool { return c.Port == 8080 },
			expect: "8080",
		},
		{
			name:   "default log level is info",
			check:  func(c *Config) bool { return c.LogLevel == "info" },
			expect: "info",
		},
		{
			name:   "default log format is json",
			check:  func(c *Config) bool { return c.LogFormat == "json" },
			expect: "json",
		},
		{
			name:   "default metrics path",
			check:  func(c *Config) bool { return c.MetricsPath == "/metrics" },
			expect: "/metrics",
		},
		{
			name:   "listen addr format",
			check:  func(c *Config) bool { return c.ListenAddr() == "0.0.0.0:8080" },
			expect: "0.0.0.0:8080",
		},
		{
			name:   "default cascade order",
			check:  func(c *Config) bool { return len(c.CascadeOrder) == 4 && c.CascadeOrder[0] == "icypeas" },
			expect: "icypeas,dropcontact,hunter,apollo",
		},
		{
			name:   "default cascade tau_min",
			check:  func(c *Config) bool { return c.CascadeTauMin == 0.70 },
			expect: "0.70",
		},
		{
			name:   "default cascade tau_stop",
			check:  func(c *Config) bool { return c.CascadeTauStop == 0.90 },
			expect: "0.90",
		},
		{
			name:   "default contact deadline",
			check:  func(c *Config) bool { return c.CascadeContactTimeout.Seconds() == 45 },
			expect: "45s",
		},
		{
			name:   "default quota daily",
			check:  func(c *Config) bool { return c.QuotaDailyDefault == 500 },
			expect: "500",
		},
		{
			name:   "default worker queue capacity",
			check:  func(c *Config) bool { return c.WorkerQueueCapacity == 1024 },
			expect: "1024",
		},
		{
			name: "default icypeas cost is cheapest",
			check: func(c *Config) bool {
				return c.IcypeasCost < c.DropcontactCost && c.IcypeasCost < c.HunterCost && c.IcypeasCost < c.ApolloCost
			},
			expect: "icypeas cheaper than dropcontact, hunter and apollo",
		},
		{
			name:   "default enrichment unit price",
			check:  func(c *Config) bool { return c.EnrichmentUnitPrice == 1.0 },
			expect: "1.0",
		},
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.check(cfg) {
				t.Errorf("expected %s", tt.expect)
			}
		})
	}
}
