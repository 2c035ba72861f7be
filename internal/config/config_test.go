package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultUserConfig_AllSectionsPresent(t *testing.T) {
	cfg := DefaultUserConfig()
	if cfg.Browser == nil || cfg.Flow == nil || cfg.Lifecycle == nil || cfg.Extract == nil {
		t.Fatal("default config must populate every section")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "credkeeper_cfg_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, ".credkeeper", "config.json")

	cfg := DefaultUserConfig()
	cfg.Browser.Headless = true
	cfg.Flow.CaptchaMode = CaptchaInteractive
	cfg.Extract.Port = 3999

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if !loaded.Browser.Headless {
		t.Error("headless not preserved")
	}
	if loaded.Flow.CaptchaMode != CaptchaInteractive {
		t.Errorf("captcha mode not preserved, got %s", loaded.Flow.CaptchaMode)
	}
	if loaded.Extract.GetPort() != 3999 {
		t.Errorf("port not preserved, got %d", loaded.Extract.GetPort())
	}
}

func TestLoadUserConfig_PartialFileGetsDefaults(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "credkeeper_cfg_partial")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "config.json")
	if err := os.WriteFile(path, []byte(`{"browser": {"headless": true}}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Lifecycle == nil {
		t.Fatal("missing lifecycle section should be defaulted")
	}
	if cfg.Lifecycle.TTL() != 20*time.Hour {
		t.Errorf("TTL default wrong: %v", cfg.Lifecycle.TTL())
	}
}

func TestLifecycleConfig_Durations(t *testing.T) {
	c := DefaultLifecycleConfig()
	if c.TTL() != 20*time.Hour {
		t.Errorf("TTL = %v, want 20h", c.TTL())
	}
	if c.WarningWindow() != 2*time.Hour {
		t.Errorf("WarningWindow = %v, want 2h", c.WarningWindow())
	}
	if c.CheckInterval() != 30*time.Minute {
		t.Errorf("CheckInterval = %v, want 30m", c.CheckInterval())
	}
	if c.RemindDelay() != time.Hour {
		t.Errorf("RemindDelay = %v, want 1h", c.RemindDelay())
	}
}

func TestFlowConfig_WaitBounds(t *testing.T) {
	c := DefaultFlowConfig()
	if c.LoginRedirectWait() != 15*time.Second {
		t.Errorf("LoginRedirectWait = %v", c.LoginRedirectWait())
	}
	if c.VerificationWait() != 30*time.Second {
		t.Errorf("VerificationWait = %v", c.VerificationWait())
	}
	if c.CaptchaTimeout() != 120*time.Second {
		t.Errorf("CaptchaTimeout = %v", c.CaptchaTimeout())
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg := LoadOrDefault(filepath.Join(os.TempDir(), "nonexistent", "config.json"))
	if cfg == nil || cfg.Flow == nil {
		t.Fatal("expected defaults for missing file")
	}
}
