package config

import (
	"io/ioutil"
	"os"
	"testing"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	f, err := ioutil.TempFile("", "catbox-config-*.yaml")
	if err != nil {
		t.Fatalf("TempFile: %s", err)
	}
	if _, err := f.WriteString(body); err != nil {
		t.Fatalf("WriteString: %s", err)
	}
	_ = f.Close()
	t.Cleanup(func() { _ = os.Remove(f.Name()) })
	return f.Name()
}

func TestLoadRequiresMandatoryKeys(t *testing.T) {
	path := writeTempConfig(t, "listen_host: 127.0.0.1\n")
	if _, err := Load(path); err == nil {
		t.Error("Load() with missing required keys = nil error, wanted error")
	}
}

func TestLoadHashesOperPasswords(t *testing.T) {
	path := writeTempConfig(t, `
listen_host: 127.0.0.1
listen_port: "6667"
server_name: test.example
server_info: Test server
version: catbox-1.0
created_date: "2020-01-01"
numeric: AB
opers:
  - name: admin
    password: hunter2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %s", err)
	}
	if len(cfg.Opers) != 1 {
		t.Fatalf("Opers = %+v, wanted 1 entry", cfg.Opers)
	}
	if cfg.Opers[0].PasswordHash == "hunter2" {
		t.Error("oper password was stored in plaintext")
	}
	if !cfg.VerifyOperPassword("admin", "hunter2") {
		t.Error("VerifyOperPassword failed for the correct password")
	}
	if cfg.VerifyOperPassword("admin", "wrong") {
		t.Error("VerifyOperPassword succeeded for the wrong password")
	}
}

func TestLoadDefaultsTimeouts(t *testing.T) {
	path := writeTempConfig(t, `
listen_host: 127.0.0.1
listen_port: "6667"
server_name: test.example
server_info: Test server
version: catbox-1.0
created_date: "2020-01-01"
numeric: AB
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() = %s", err)
	}
	if cfg.PingTime == 0 || cfg.DeadTime == 0 || cfg.WakeupTime == 0 {
		t.Errorf("expected default timeouts to be populated, got %+v", cfg)
	}
}
