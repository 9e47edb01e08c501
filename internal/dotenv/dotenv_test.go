package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseLine(t *testing.T) {
	cases := []struct {
		in      string
		key     string
		val     string
		ok      bool
	}{
		{"PROSPER_ADDR=:9090", "PROSPER_ADDR", ":9090", true},
		{"  PROSPER_ADDR = :9090 ", "PROSPER_ADDR", ":9090", true},
		{`KEY="quoted value"`, "KEY", "quoted value", true},
		{"KEY='single quoted'", "KEY", "single quoted", true},
		{"export KEY=value", "KEY", "value", true},
		{"KEY=", "KEY", "", true},
		{"", "", "", false},
		{"   ", "", "", false},
		{"# comment", "", "", false},
		{"no assignment here", "", "", false},
		{"=value", "", "", false},
	}
	for _, tc := range cases {
		key, val, ok := parseLine(tc.in)
		if ok != tc.ok || key != tc.key || val != tc.val {
			t.Fatalf("parseLine(%q) = %q, %q, %v; want %q, %q, %v",
				tc.in, key, val, ok, tc.key, tc.val, tc.ok)
		}
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local dev settings\nDOTENV_TEST_A=one\nexport DOTENV_TEST_B=\"two words\"\n\nDOTENV_TEST_C=three\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	for _, key := range []string{"DOTENV_TEST_A", "DOTENV_TEST_B", "DOTENV_TEST_C"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	// An existing value must not be clobbered.
	t.Setenv("DOTENV_TEST_C", "preset")

	if err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if got := os.Getenv("DOTENV_TEST_A"); got != "one" {
		t.Fatalf("DOTENV_TEST_A=%q", got)
	}
	if got := os.Getenv("DOTENV_TEST_B"); got != "two words" {
		t.Fatalf("DOTENV_TEST_B=%q", got)
	}
	if got := os.Getenv("DOTENV_TEST_C"); got != "preset" {
		t.Fatalf("DOTENV_TEST_C=%q, want preset kept", got)
	}
}

func TestLoadFile_MissingFileIsNotAnError(t *testing.T) {
	if err := LoadFile(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("LoadFile missing file: %v", err)
	}
}
