package testdata

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadKeyValueRows(t *testing.T) {
	path := writeFile(t, "data.csv", "key,value\nUsername,alice\nPassword,hunter2\n")
	values, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if values["Username"] != "alice" || values["Password"] != "hunter2" {
		t.Errorf("unexpected values: %#v", values)
	}
}

func TestLoadKeyValueRowsWithoutHeader(t *testing.T) {
	path := writeFile(t, "data.csv", "Username,alice\nPassword,hunter2\n")
	values, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 2 {
		t.Errorf("unexpected values: %#v", values)
	}
}

func TestLoadHeaderRowTransposition(t *testing.T) {
	path := writeFile(t, "data.csv", "Username,Password,Region\nalice,hunter2,eu-west\n")
	values, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"Username": "alice", "Password": "hunter2", "Region": "eu-west"}
	for k, v := range want {
		if values[k] != v {
			t.Errorf("%s: got %q, want %q", k, values[k], v)
		}
	}
}

func TestLoadNotFoundDistinctFromEmpty(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	path := writeFile(t, "empty.csv", "")
	values, err := Load(path)
	if err != nil {
		t.Fatalf("empty file should not error: %v", err)
	}
	if len(values) != 0 {
		t.Errorf("want empty map, got %#v", values)
	}
}

func TestIsProductionPath(t *testing.T) {
	if !IsProductionPath("/data/prod-creds.csv") {
		t.Error("prod filename not detected")
	}
	if !IsProductionPath("Production.csv") {
		t.Error("Production filename not detected")
	}
	if IsProductionPath("/prod-cluster/staging.csv") {
		t.Error("directory names must not count")
	}
	// Known fragility, kept on purpose: "reproduce" matches too.
	if !IsProductionPath("reproduce.csv") {
		t.Error("documented substring behavior changed")
	}
}
