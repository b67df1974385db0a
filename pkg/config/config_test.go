package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	valid bool
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	s.valid = true
	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("CFG_TEST_NAME", "from-env")
	path := writeConfig(t, "name: ${CFG_TEST_NAME}\n")

	s := &sample{Port: 8080}
	if err := Load(path, s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "from-env" || s.Port != 8080 || !s.valid {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "name: x\nport: 1\nextra: true\n"},
		{"validation", "port: -1\n"},
		{"bad yaml", "name: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Load(writeConfig(t, tt.body), &sample{}); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	s := &sample{Port: 3}
	if err := Load(writeConfig(t, ""), s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 3 {
		t.Errorf("port = %d", s.Port)
	}
}

func TestLoadOptional(t *testing.T) {
	s := &sample{Port: 1}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "missing.yaml"), s)
	if err != nil || found {
		t.Fatalf("found = %v, err = %v", found, err)
	}
	if !s.valid {
		t.Error("defaults were not validated")
	}

	found, err = LoadOptional(writeConfig(t, "port: 5\n"), s)
	if err != nil || !found || s.Port != 5 {
		t.Errorf("found = %v, err = %v, port = %d", found, err, s.Port)
	}
}
