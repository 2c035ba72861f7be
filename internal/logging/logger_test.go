package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitialize_NoConfigIsSilent(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "credkeeper_log_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Without a config file, debug mode is off and no logs dir is created.
	if IsDebugMode() {
		t.Error("expected debug mode off without config")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not exist in production mode")
	}

	// Logging must be a no-op, not a crash.
	Store("account added: %s", "x")
	CloseAll()
}

func TestInitialize_DebugModeWritesLogs(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "credkeeper_log_test_dbg")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	cfg := `{"logging": {"debug_mode": true, "level": "debug"}}`
	if err := os.WriteFile(filepath.Join(tempDir, "config.json"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}

	if err := Initialize(tempDir); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	if !IsDebugMode() {
		t.Fatal("expected debug mode on")
	}

	Flow("state transition: %s", "Init->BrowserReady")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), "flow") {
			found = true
		}
	}
	if !found {
		t.Error("expected a flow log file")
	}
}

func TestInitializeWithSettings_EnablesCategorizedLogs(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "credkeeper_log_test_settings")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	// The CLI path: config parsed elsewhere, no config.json in the dir.
	err = InitializeWithSettings(tempDir, Settings{DebugMode: true, Level: "debug"})
	if err != nil {
		t.Fatalf("InitializeWithSettings failed: %v", err)
	}
	defer CloseAll()

	if !IsDebugMode() {
		t.Fatal("expected debug mode on")
	}

	Lifecycle("expiry check: %s", "valid")
	CloseAll()

	entries, err := os.ReadDir(filepath.Join(tempDir, "logs"))
	if err != nil {
		t.Fatalf("logs dir missing: %v", err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), "lifecycle") {
			found = true
		}
	}
	if !found {
		t.Error("expected a lifecycle log file")
	}
}

func TestInitializeWithSettings_DisabledStaysSilent(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "credkeeper_log_test_off")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	if err := InitializeWithSettings(tempDir, Settings{}); err != nil {
		t.Fatalf("InitializeWithSettings failed: %v", err)
	}
	if IsDebugMode() {
		t.Error("expected debug mode off")
	}
	if _, err := os.Stat(filepath.Join(tempDir, "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not exist when debug mode is off")
	}
	CloseAll()
}

func TestRedact(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "<empty>"},
		{"short", "****"},
		{"sessionToken=abcdef1234567890", "sessio...7890"},
	}
	for _, c := range cases {
		if got := Redact(c.in); got != c.want {
			t.Errorf("Redact(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	// A redacted credential never contains the full secret.
	secret := "sessionToken=supersecretvalue123456"
	if got := Redact(secret); strings.Contains(got, "supersecretvalue") {
		t.Errorf("redacted value leaks secret: %q", got)
	}
}
