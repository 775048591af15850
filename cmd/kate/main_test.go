package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/kate/pkg/cli"
)

const servicesYAML = `
- name: users
  baseUrl: http://users.internal:8080
  routes:
    - uri: /users/{id}
      methods: [GET, DELETE]
    - uri: /users
      methods: [POST]
      rate_limit_policy:
        limit: 5
        refreshTimeSeconds: 60
        requestKey: IP
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the root command with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "Kate "+Version+"\n") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(out, "Go Version: go") {
		t.Errorf("missing Go version in %q", out)
	}
}

func TestRoutesCommand(t *testing.T) {
	path := writeFile(t, "services.yaml", servicesYAML)

	out, err := execute(t, "routes", "--services", path, "--output", "csv")
	if err != nil {
		t.Fatalf("routes: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{
		"METHOD,PATH,SERVICE,TAG,STAGES",
		`GET,/users/{id},users,-,"ratelimit,forward"`,
		`DELETE,/users/{id},users,-,"ratelimit,forward"`,
		`POST,/users,users,-,"ratelimit,forward"`,
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("routes output:\n%s\nwant:\n%s", out, strings.Join(want, "\n"))
	}
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		path := writeFile(t, "services.yaml", servicesYAML)
		out, err := execute(t, "validate", "--services", path, "--output", "text", "--probe=false")
		if err != nil {
			t.Fatalf("validate: %v\n%s", err, out)
		}
		if !strings.Contains(out, "✓ 1 services, 3 routes") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("invalid", func(t *testing.T) {
		path := writeFile(t, "services.json", `[{"name":"users","baseUrl":"http://users","routes":[{"uri":"users"}]}]`)
		out, err := execute(t, "validate", "--services", path, "--output", "text", "--probe=false")
		if cli.ExitCode(err) != cli.ExitConfig {
			t.Fatalf("exit code = %d (%v), want %d", cli.ExitCode(err), err, cli.ExitConfig)
		}
		if !strings.Contains(out, "✗ ") {
			t.Errorf("expected a problem line, got %q", out)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "validate", "--services", filepath.Join(t.TempDir(), "none.yaml"), "--output", "text", "--probe=false")
		if cli.ExitCode(err) != cli.ExitConfig {
			t.Errorf("exit code = %d (%v)", cli.ExitCode(err), err)
		}
	})

	t.Run("bad output format", func(t *testing.T) {
		path := writeFile(t, "services.yaml", servicesYAML)
		if _, err := execute(t, "validate", "--services", path, "--output", "xml", "--probe=false"); err == nil {
			t.Error("expected an error for an unknown format")
		}
	})
}

func TestRunDryRun(t *testing.T) {
	out, err := execute(t, "run", "--dry-run", "--log-level", "warn")
	if err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}
	if !strings.Contains(out, "✓ Configuration valid") {
		t.Errorf("output = %q", out)
	}
}

func TestRunBadConfig(t *testing.T) {
	path := writeFile(t, "kate.yaml", "services:\n  backend: etcd\n")
	_, err := execute(t, "run", "--dry-run", "--config", path)
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("exit code = %d (%v), want %d", cli.ExitCode(err), err, cli.ExitConfig)
	}
}
