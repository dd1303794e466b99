package atomicfile

import (
	"os"
	"path/filepath"
	"testing"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "record.json")

	want := record{Name: "ada", Count: 3}
	if err := WriteJSON(path, want, 0o640); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var got record
	ok, err := ReadJSON(path, &got)
	if err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true reading a file just written")
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file removed after successful rename")
	}
}

func TestReadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	var got record
	ok, err := ReadJSON(filepath.Join(dir, "absent.json"), &got)
	if err != nil {
		t.Fatalf("expected no error for a missing file, got %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a missing file")
	}
}

func TestWriteOverwritesPreviousContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "record.json")

	if err := WriteJSON(path, record{Name: "first", Count: 1}, 0o640); err != nil {
		t.Fatalf("WriteJSON first: %v", err)
	}
	if err := WriteJSON(path, record{Name: "second", Count: 2}, 0o640); err != nil {
		t.Fatalf("WriteJSON second: %v", err)
	}

	var got record
	if _, err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Name != "second" || got.Count != 2 {
		t.Fatalf("expected overwritten content, got %+v", got)
	}
}

func TestReadUnmarshalErrorOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corrupt.json")
	if err := os.WriteFile(path, []byte("not json"), 0o640); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	var got record
	if _, err := ReadJSON(path, &got); err == nil {
		t.Fatalf("expected unmarshal error for corrupt json")
	}
}
