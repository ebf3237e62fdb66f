package config

import (
	"os"
	"testing"
	"time"
)

func TestRequireEnv(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		value     string
		shouldSet bool
		wantPanic bool
	}{
		{
			name:      "variable set",
			key:       "TEST_VAR",
			value:     "test_value",
			shouldSet: true,
			wantPanic: false,
		},
		{
			name:      "variable not set",
			key:       "TEST_VAR_MISSING",
			shouldSet: false,
			wantPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.shouldSet {
				t.Setenv(tt.key, tt.value)
			} else {
				_ = os.Unsetenv(tt.key)
			}

			if tt.wantPanic {
				defer func() {
					if r := recover(); r == nil {
						t.Errorf("requireEnv() should have panicked")
					}
				}()
			}

			result := requireEnv(tt.key)
			if !tt.wantPanic && result != tt.value {
				t.Errorf("requireEnv() = %v, want %v", result, tt.value)
			}
		})
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "single", input: "a", expected: []string{"a"}},
		{name: "spaces and quotes", input: ` "a" , 'b',, c `, expected: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := splitAndTrim(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("splitAndTrim() = %v, want %v", result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("splitAndTrim()[%d] = %v, want %v", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MARKS_REDIS_ADDR", "localhost:6379")
	t.Setenv("MARKS_RESYNC_INTERVAL", "not-a-duration")
	t.Setenv("MARKS_ALLOWED_CIDRS", "10.0.0.0/8, 192.168.1.1")

	cfg := Load()

	if cfg.ListenPort != ":8080" {
		t.Errorf("ListenPort = %q, want :8080", cfg.ListenPort)
	}
	if cfg.Schema != "public" || cfg.Table != "bookmarks" {
		t.Errorf("scope = %s.%s, want public.bookmarks", cfg.Schema, cfg.Table)
	}
	if cfg.ResyncInterval != 5*time.Minute {
		t.Errorf("ResyncInterval = %v, want fallback 5m", cfg.ResyncInterval)
	}
	if cfg.TombstoneTTL != time.Hour {
		t.Errorf("TombstoneTTL = %v, want 1h", cfg.TombstoneTTL)
	}
	if len(cfg.AllowedCIDRS) != 2 {
		t.Errorf("AllowedCIDRS = %v, want 2 entries", cfg.AllowedCIDRS)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Errorf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
	if cfg.Principal != "" {
		t.Errorf("Principal = %q, want empty", cfg.Principal)
	}
}

func TestLoadPanicsOnInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing redis addr",
			env:  map[string]string{"MARKS_REDIS_ADDR": ""},
		},
		{
			name: "password required",
			env: map[string]string{
				"MARKS_REDIS_ADDR":              "localhost:6379",
				"MARKS_REDIS_PASSWORD_REQUIRED": "true",
			},
		},
		{
			name: "zero ttl",
			env: map[string]string{
				"MARKS_REDIS_ADDR":    "localhost:6379",
				"MARKS_TOMBSTONE_TTL": "0s",
			},
		},
		{
			name: "bad table",
			env: map[string]string{
				"MARKS_REDIS_ADDR": "localhost:6379",
				"MARKS_TABLE":      "a:b",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			defer func() {
				if r := recover(); r == nil {
					t.Errorf("Load() should have panicked")
				}
			}()
			Load()
		})
	}
}
