package cloakkit

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{Driver: "local", LocalBasePath: "/tmp", MaxFiles: 10, MaxPatterns: 5}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid local",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty driver",
			mutate:  func(c *Config) { c.Driver = "" },
			wantErr: true,
			errMsg:  "driver is required",
		},
		{
			name:    "local driver without base path",
			mutate:  func(c *Config) { c.LocalBasePath = "" },
			wantErr: true,
			errMsg:  "local base path is required for local driver",
		},
		{
			name:    "negative memory size",
			mutate:  func(c *Config) { c.Driver = "memory"; c.MemoryMaxSize = -1 },
			wantErr: true,
			errMsg:  "memory max size",
		},
		{
			name:    "sftp without host",
			mutate:  func(c *Config) { c.Driver = "sftp"; c.SFTPPassword = "pw"; c.SFTPInsecureHostKey = true },
			wantErr: true,
			errMsg:  "SFTP host is required",
		},
		{
			name:    "sftp without credentials",
			mutate:  func(c *Config) { c.Driver = "sftp"; c.SFTPHost = "h"; c.SFTPInsecureHostKey = true },
			wantErr: true,
			errMsg:  "password or private key",
		},
		{
			name:    "sftp without host key verification",
			mutate:  func(c *Config) { c.Driver = "sftp"; c.SFTPHost = "h"; c.SFTPPassword = "pw" },
			wantErr: true,
			errMsg:  "known hosts",
		},
		{
			name: "valid sftp",
			mutate: func(c *Config) {
				c.Driver = "sftp"
				c.SFTPHost = "h"
				c.SFTPPassword = "pw"
				c.SFTPKnownHosts = "/etc/ssh/ssh_known_hosts"
			},
		},
		{
			name:    "zip without path",
			mutate:  func(c *Config) { c.Driver = "zip" },
			wantErr: true,
			errMsg:  "zip path is required",
		},
		{
			name:    "zero max files",
			mutate:  func(c *Config) { c.MaxFiles = 0 },
			wantErr: true,
			errMsg:  "max files",
		},
		{
			name:    "zero max patterns",
			mutate:  func(c *Config) { c.MaxPatterns = 0 },
			wantErr: true,
			errMsg:  "max patterns",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validateConfig(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("validateConfig() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}

	if err := validateConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNew(t *testing.T) {
	t.Run("registered driver", func(t *testing.T) {
		fs, err := New(&Config{Driver: "test", MaxFiles: 1, MaxPatterns: 1})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		if _, ok := fs.(*testFS); !ok {
			t.Errorf("expected test driver, got %T", fs)
		}
	})

	t.Run("unregistered driver", func(t *testing.T) {
		_, err := New(&Config{Driver: "nope", MaxFiles: 1, MaxPatterns: 1})
		if !errors.Is(err, ErrNotSupported) {
			t.Errorf("expected ErrNotSupported, got %v", err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := New(&Config{Driver: "test"})
		if !errors.Is(err, ErrInvalidLimit) {
			t.Errorf("expected ErrInvalidLimit, got %v", err)
		}
	})

	found := false
	for _, name := range Drivers() {
		if name == "test" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected test driver in %v", Drivers())
	}
}

func TestNewTransform(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		wantName string
		wantErr  error
	}{
		{"xor", Config{Transform: "xor", Key: "k"}, "xor", nil},
		{"xor without key", Config{Transform: "xor"}, "", ErrEmptyKey},
		{"caesar", Config{Transform: "caesar", Shift: 3}, "caesar(3)", nil},
		{"rot13", Config{Transform: "rot13"}, "rot13", nil},
		{"unknown", Config{Transform: "aes"}, "", ErrNotSupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransform(&tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tr.Name() != tt.wantName {
				t.Errorf("Name() = %q, want %q", tr.Name(), tt.wantName)
			}
		})
	}
}

func TestConfigPipelineOptions(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{Recursive: false, MaxFiles: 1, Verify: false, Workers: 2}

	p, err := NewPipeline(sampleTree(), newTestFS(), Rot13(), cfg.PipelineOptions()...)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}

	report, err := p.Run(ctx, "docs")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != 1 {
		t.Fatalf("expected a single flat result, got %d", len(report.Results))
	}
	if report.Results[0].Verified {
		t.Error("expected verification to be disabled")
	}

	cfg.MaxFiles = 0
	if _, err := NewPipeline(sampleTree(), newTestFS(), Rot13(), cfg.PipelineOptions()...); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
}
