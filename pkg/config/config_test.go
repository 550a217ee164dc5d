package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	s.valid = true
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("KILN_TEST_NAME", "notes")
	path := writeFile(t, "name: ${KILN_TEST_NAME}\nport: 9090\n")

	var s sample
	if err := Load(path, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "notes" || s.Port != 9090 {
		t.Errorf("loaded = %+v", s)
	}
	if !s.valid {
		t.Error("Validate was not called")
	}
}

func TestLoad_ValidationError(t *testing.T) {
	path := writeFile(t, "name: x\nport: 0\n")

	var s sample
	err := Load(path, &s)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	var s sample
	if err := Load(filepath.Join(t.TempDir(), "nope.yaml"), &s); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOptional(t *testing.T) {
	s := sample{Port: 1}
	read, err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), &s)
	if err != nil || read {
		t.Fatalf("missing file: read=%v err=%v", read, err)
	}
	if !s.valid || s.Port != 1 {
		t.Errorf("defaults not validated: %+v", s)
	}

	path := writeFile(t, "port: 7\n")
	read, err = LoadOptional(path, &s)
	if err != nil || !read || s.Port != 7 {
		t.Errorf("existing file: read=%v err=%v s=%+v", read, err, s)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	def := writeFile(t, "port: 3\n")
	var s sample
	if err := LoadWithDefaults(filepath.Join(t.TempDir(), "nope.yaml"), def, &s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 3 {
		t.Errorf("port = %d, want 3", s.Port)
	}
}
