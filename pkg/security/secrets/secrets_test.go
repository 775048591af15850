package secrets

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mercator-hq/kate/pkg/config"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("KATE_SECRET_JWT_SECRET", "s3cret")
	p := NewEnvProvider("KATE_SECRET_")

	if got := p.EnvVar("jwt-secret"); got != "KATE_SECRET_JWT_SECRET" {
		t.Errorf("EnvVar() = %q", got)
	}
	v, err := p.GetSecret(context.Background(), "jwt-secret")
	if err != nil || v != "s3cret" {
		t.Errorf("GetSecret() = %q, %v", v, err)
	}
	if _, err := p.GetSecret(context.Background(), "missing"); err == nil {
		t.Error("missing variable should fail")
	}
}

func writeSecret(t *testing.T, dir, name, value string, mode os.FileMode) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(value), mode); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatal(err)
	}
}

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "broker-password", "hunter2\n", 0o600)
	writeSecret(t, dir, "open", "x", 0o644)

	p, err := NewFileProvider(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{name: "broker-password", want: "hunter2"},
		{name: "open", wantErr: true},
		{name: "missing", wantErr: true},
		{name: "../etc/passwd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.GetSecret(context.Background(), tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("GetSecret() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFileProvider_Refresh(t *testing.T) {
	dir := t.TempDir()
	writeSecret(t, dir, "token", "v1", 0o600)

	p, err := NewFileProvider(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if v, _ := p.GetSecret(ctx, "token"); v != "v1" {
		t.Fatalf("first read = %q", v)
	}
	writeSecret(t, dir, "token", "v2", 0o600)
	if v, _ := p.GetSecret(ctx, "token"); v != "v1" {
		t.Errorf("cached read = %q, want v1", v)
	}
	_ = p.Refresh(ctx)
	if v, _ := p.GetSecret(ctx, "token"); v != "v2" {
		t.Errorf("refreshed read = %q, want v2", v)
	}
}

func TestNewFileProvider_NotDir(t *testing.T) {
	if _, err := NewFileProvider(filepath.Join(t.TempDir(), "nope"), false); err == nil {
		t.Error("missing dir should fail")
	}
}

func TestCache(t *testing.T) {
	now := time.Unix(1000, 0)
	c := NewCache(time.Minute, 2)
	c.now = func() time.Time { return now }

	c.Set("a", "1")
	now = now.Add(time.Second)
	c.Set("b", "2")
	c.Set("c", "3") // evicts a
	if _, ok := c.Get("a"); ok {
		t.Error("a should have been evicted")
	}
	if v, ok := c.Get("c"); !ok || v != "3" {
		t.Errorf("Get(c) = %q, %v", v, ok)
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("b"); ok {
		t.Error("b should have expired")
	}

	off := NewCache(0, 10)
	off.Set("a", "1")
	if off.Len() != 0 {
		t.Error("zero TTL should disable caching")
	}
}

func TestManager_Resolve(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	dir := t.TempDir()
	writeSecret(t, dir, "mq", "pw", 0o400)
	fp, err := NewFileProvider(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(NewCache(time.Minute, 10), NewEnvProvider(""), fp)
	ctx := context.Background()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "plain", want: "plain"},
		{in: "${env:JWT_SECRET}", want: "s3cret"},
		{in: "amqp://u:${file:mq}@host", want: "amqp://u:pw@host"},
		{in: "${env:NOPE_NOT_SET}", want: "${env:NOPE_NOT_SET}", wantErr: true},
		{in: "${vault:x}", want: "${vault:x}", wantErr: true},
	}
	for _, tt := range tests {
		got, err := m.Resolve(ctx, tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("Resolve(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	_, err = m.Resolve(ctx, "${env:NOPE_NOT_SET}")
	if err == nil || strings.Contains(err.Error(), "NOPE_NOT_SET}") {
		t.Errorf("error should not echo the full reference: %v", err)
	}
}

func TestManager_CachesValues(t *testing.T) {
	t.Setenv("ROTATING", "old")
	m := NewManager(NewCache(time.Minute, 10), NewEnvProvider(""))
	ctx := context.Background()

	if v, _ := m.Resolve(ctx, "${env:ROTATING}"); v != "old" {
		t.Fatalf("Resolve() = %q", v)
	}
	t.Setenv("ROTATING", "new")
	if v, _ := m.Resolve(ctx, "${env:ROTATING}"); v != "old" {
		t.Errorf("cached Resolve() = %q, want old", v)
	}
	if err := m.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	if v, _ := m.Resolve(ctx, "${env:ROTATING}"); v != "new" {
		t.Errorf("refreshed Resolve() = %q, want new", v)
	}
}

func TestIsReference(t *testing.T) {
	if !IsReference("x ${env:A} y") || IsReference("$HOME") {
		t.Error("IsReference mismatch")
	}
}

func TestNewManagerFromConfig(t *testing.T) {
	m, err := NewManagerFromConfig(config.SecretsConfig{
		FileDir:  filepath.Join(t.TempDir(), "missing"),
		CacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	if _, ok := m.providers[SchemeFile]; ok {
		t.Error("file provider should be skipped for a missing dir")
	}
	if _, ok := m.providers[SchemeEnv]; !ok {
		t.Error("env provider missing")
	}
}
