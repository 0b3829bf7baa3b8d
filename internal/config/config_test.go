package config

import "testing"

func TestDatabaseConfigValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		cfg  DatabaseConfig
	}{
		{"missing database", DatabaseConfig{Host: "localhost", Port: 5432, Username: "postgres"}},
		{"missing host", DatabaseConfig{Database: "appdb", Port: 5432, Username: "postgres"}},
		{"bad port", DatabaseConfig{Database: "appdb", Host: "localhost", Port: 0, Username: "postgres"}},
		{"missing username", DatabaseConfig{Database: "appdb", Host: "localhost", Port: 5432}},
	}
	for _, c := range cases {
		if err := c.cfg.Validate(); err == nil {
			t.Errorf("%s: expected Validate to reject %+v", c.name, c.cfg)
		}
	}
}

func TestDatabaseConfigValidateDefaultsSSLMode(t *testing.T) {
	cfg := DatabaseConfig{Database: "appdb", Host: "localhost", Port: 5432, Username: "postgres"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.SSLMode != "prefer" {
		t.Fatalf("SSLMode = %q, want default %q", cfg.SSLMode, "prefer")
	}
}

func TestDatabaseConfigUsesTunnel(t *testing.T) {
	cfg := DatabaseConfig{Database: "appdb", Host: "localhost", Port: 5432, Username: "postgres"}
	if cfg.UsesTunnel() {
		t.Fatalf("expected no tunnel by default")
	}
	cfg.Tunnel = &TunnelConfig{SSHHost: "jump.example.com", SSHUser: "deploy", SSHKeyPath: "/dev/null", RemotePort: 5432}
	if !cfg.UsesTunnel() {
		t.Fatalf("expected UsesTunnel to be true once a tunnel is configured")
	}
}

func TestTunnelConfigValidateRequiresUserAndKey(t *testing.T) {
	tun := &TunnelConfig{SSHHost: "jump.example.com", RemotePort: 5432}
	if err := tun.Validate(); err == nil {
		t.Fatalf("expected Validate to reject a tunnel with no SSH user/key")
	}
}

func TestTunnelConfigValidateDefaultsPorts(t *testing.T) {
	tun := &TunnelConfig{SSHHost: "jump.example.com", SSHUser: "deploy", SSHKeyPath: "/dev/null", RemotePort: 5432}
	if err := tun.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if tun.SSHPort != 22 {
		t.Fatalf("SSHPort = %d, want default 22", tun.SSHPort)
	}
	if tun.RemoteHost != "localhost" {
		t.Fatalf("RemoteHost = %q, want default %q", tun.RemoteHost, "localhost")
	}
}

func TestStorageConfigValidateExactlyOneVariant(t *testing.T) {
	local := StorageConfig{Kind: StorageLocal, RootPath: "/tmp/backups"}
	if err := local.Validate(); err != nil {
		t.Errorf("local: Validate: %v", err)
	}

	noRoot := StorageConfig{Kind: StorageLocal}
	if err := noRoot.Validate(); err == nil {
		t.Errorf("expected local storage with no root path to fail validation")
	}

	s3 := StorageConfig{Kind: StorageS3, Bucket: "my-backups", Region: "us-east-1"}
	if err := s3.Validate(); err != nil {
		t.Errorf("s3: Validate: %v", err)
	}

	s3NoRegion := StorageConfig{Kind: StorageS3, Bucket: "my-backups"}
	if err := s3NoRegion.Validate(); err == nil {
		t.Errorf("expected s3 storage with no region/endpoint to fail validation")
	}

	unknown := StorageConfig{Kind: StorageKind(99)}
	if err := unknown.Validate(); err == nil {
		t.Errorf("expected unknown storage kind to fail validation")
	}
}

func TestPasswordFromEnvFallsBackToPGPASSWORD(t *testing.T) {
	t.Setenv("PGPASSWORD", "from-env")
	cfg := DatabaseConfig{}
	if got := cfg.PasswordFromEnv(); got != "from-env" {
		t.Fatalf("PasswordFromEnv() = %q, want %q", got, "from-env")
	}
	cfg.Password = "explicit"
	if got := cfg.PasswordFromEnv(); got != "explicit" {
		t.Fatalf("PasswordFromEnv() = %q, want explicit value to take precedence", got)
	}
}
