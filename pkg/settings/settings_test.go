package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Snapshot)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(s *Snapshot) {},
			wantErr: false,
		},
		{
			name:    "zero max failure count",
			mutate:  func(s *Snapshot) { s.MaxFailureCount = 0 },
			wantErr: true,
		},
		{
			name:    "zero max retries",
			mutate:  func(s *Snapshot) { s.MaxRetries = 0 },
			wantErr: true,
		},
		{
			name:    "negative cooldown",
			mutate:  func(s *Snapshot) { s.RateLimitCooldown = -time.Second },
			wantErr: true,
		},
		{
			name:    "unknown strategy",
			mutate:  func(s *Snapshot) { s.LoadBalancingStrategy = "fastest" },
			wantErr: true,
		},
		{
			name:    "least-connections strategy",
			mutate:  func(s *Snapshot) { s.LoadBalancingStrategy = StrategyLeastConnections },
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Default()
			tt.mutate(&snap)
			err := snap.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFileProvider_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	content := `
keyRotationRequestCount: 5
maxFailureCount: 2
rateLimitCooldown: 120
loadBalancingStrategy: least-connections
maxRetries: 4
requestRateLimit: 50
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write settings file: %v", err)
	}

	provider, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}

	snap := provider.Read()
	if snap.KeyRotationRequestCount != 5 {
		t.Errorf("KeyRotationRequestCount = %d, want 5", snap.KeyRotationRequestCount)
	}
	if snap.MaxFailureCount != 2 {
		t.Errorf("MaxFailureCount = %d, want 2", snap.MaxFailureCount)
	}
	if snap.RateLimitCooldown != 2*time.Minute {
		t.Errorf("RateLimitCooldown = %s, want 2m", snap.RateLimitCooldown)
	}
	if snap.LoadBalancingStrategy != StrategyLeastConnections {
		t.Errorf("LoadBalancingStrategy = %q, want least-connections", snap.LoadBalancingStrategy)
	}
	if snap.MaxRetries != 4 {
		t.Errorf("MaxRetries = %d, want 4", snap.MaxRetries)
	}
	if snap.RequestRateLimit != 50 {
		t.Errorf("RequestRateLimit = %d, want 50", snap.RequestRateLimit)
	}
}

func TestFileProvider_PartialFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	if err := os.WriteFile(path, []byte("maxRetries: 7\n"), 0o644); err != nil {
		t.Fatalf("failed to write settings file: %v", err)
	}

	provider, err := NewFileProvider(path)
	if err != nil {
		t.Fatalf("NewFileProvider() error = %v", err)
	}

	snap := provider.Read()
	def := Default()
	if snap.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", snap.MaxRetries)
	}
	if snap.MaxFailureCount != def.MaxFailureCount {
		t.Errorf("MaxFailureCount = %d, want default %d", snap.MaxFailureCount, def.MaxFailureCount)
	}
	if snap.LoadBalancingStrategy != def.LoadBalancingStrategy {
		t.Errorf("LoadBalancingStrategy = %q, want default %q", snap.LoadBalancingStrategy, def.LoadBalancingStrategy)
	}
}

func TestFileProvider_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	if err := os.WriteFile(path, []byte("maxRetries: 0\n"), 0o644); err != nil {
		t.Fatalf("failed to write settings file: %v", err)
	}

	if _, err := NewFileProvider(path); err == nil {
		t.Error("NewFileProvider() should reject a file that fails validation")
	}
}

func TestStatic_Set(t *testing.T) {
	provider := NewStatic(Default())

	snap := provider.Read()
	snap.MaxRetries = 9
	provider.Set(snap)

	if got := provider.Read().MaxRetries; got != 9 {
		t.Errorf("Read().MaxRetries = %d after Set, want 9", got)
	}
}
