package app

import (
	"testing"
	"time"
)

func TestEnvString(t *testing.T) {
	t.Setenv("GCF_TEST_STR", "  value  ")

	if got := EnvString("GCF_TEST_STR", "def"); got != "value" {
		t.Fatalf("EnvString = %q, want %q", got, "value")
	}
	if got := EnvString("GCF_TEST_STR_ABSENT", "def"); got != "def" {
		t.Fatalf("EnvString absent = %q, want default", got)
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("GCF_TEST_BOOL_TRUE", "true")
	t.Setenv("GCF_TEST_BOOL_BAD", "yep")

	if !EnvBool("GCF_TEST_BOOL_TRUE", false) {
		t.Fatalf("EnvBool(true) = false")
	}
	if EnvBool("GCF_TEST_BOOL_BAD", false) {
		t.Fatalf("EnvBool(bad value) did not fall back to default")
	}
	if !EnvBool("GCF_TEST_BOOL_ABSENT", true) {
		t.Fatalf("EnvBool absent did not return default")
	}
}

func TestEnvInt(t *testing.T) {
	t.Setenv("GCF_TEST_INT", "42")
	t.Setenv("GCF_TEST_INT_NEG", "-3")
	t.Setenv("GCF_TEST_INT_BAD", "many")

	if got := EnvInt("GCF_TEST_INT", 7); got != 42 {
		t.Fatalf("EnvInt = %d, want 42", got)
	}
	if got := EnvInt("GCF_TEST_INT_NEG", 7); got != 7 {
		t.Fatalf("EnvInt negative = %d, want default", got)
	}
	if got := EnvInt("GCF_TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("EnvInt bad = %d, want default", got)
	}
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("GCF_TEST_DUR", "45s")
	t.Setenv("GCF_TEST_DUR_BAD", "soon")

	if got := EnvDuration("GCF_TEST_DUR", time.Second); got != 45*time.Second {
		t.Fatalf("EnvDuration = %v, want 45s", got)
	}
	if got := EnvDuration("GCF_TEST_DUR_BAD", time.Second); got != time.Second {
		t.Fatalf("EnvDuration bad = %v, want default", got)
	}
}

func TestEnvCSV(t *testing.T) {
	t.Setenv("GCF_TEST_CSV", "http://localhost, http://127.0.0.1 ,,")

	got := EnvCSV("GCF_TEST_CSV", "")
	if len(got) != 2 || got[0] != "http://localhost" || got[1] != "http://127.0.0.1" {
		t.Fatalf("EnvCSV = %v", got)
	}

	def := EnvCSV("GCF_TEST_CSV_ABSENT", "a,b")
	if len(def) != 2 || def[0] != "a" || def[1] != "b" {
		t.Fatalf("EnvCSV default = %v", def)
	}

	if empty := EnvCSV("GCF_TEST_CSV_ABSENT_2", ""); empty != nil {
		t.Fatalf("EnvCSV empty = %v, want nil", empty)
	}
}

func TestLoadConfigReadsWSKnobs(t *testing.T) {
	t.Setenv("GCF_WS_SEND_QUEUE", "128")
	t.Setenv("GCF_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("GCF_WS_RATE_WINDOW", "30s")

	cfg := LoadConfig()
	if cfg.WSSendQueueSize != 128 {
		t.Fatalf("WSSendQueueSize = %d, want 128", cfg.WSSendQueueSize)
	}
	if cfg.WSOriginRequired {
		t.Fatalf("WSOriginRequired = true, want false")
	}
	if cfg.WSRateWindow != 30*time.Second {
		t.Fatalf("WSRateWindow = %v, want 30s", cfg.WSRateWindow)
	}
	if cfg.HTTPAddr == "" {
		t.Fatalf("HTTPAddr default missing")
	}
}
