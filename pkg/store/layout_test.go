package store

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	root := filepath.Join("runtime", "jobs")
	l := NewLayout(root)

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"job file", l.JobFile("job_1"), filepath.Join(root, "job_1", "job.json")},
		{"text", l.TextPath("job_1", "q1"), filepath.Join(root, "job_1", "outputs", "q1.txt")},
		{"svg", l.SVGPath("job_1", "q1"), filepath.Join(root, "job_1", "outputs", "q1.svg")},
		{"crop", l.CropPath("job_1", "q1"), filepath.Join(root, "job_1", "outputs", "q1_crop.txt")},
		{"export", l.ExportPath("job_1"), filepath.Join(root, "job_1", "exports", "job_1.hwpx")},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, tt.got, tt.want)
		}
	}
}

func TestLayoutURLRoundTrip(t *testing.T) {
	l := NewLayout(t.TempDir())

	url, err := l.URL(l.SVGPath("job_1", "q1"))
	if err != nil {
		t.Fatalf("URL failed: %v", err)
	}
	if url != "jobs/job_1/outputs/q1.svg" {
		t.Errorf("unexpected url %s", url)
	}

	p, err := l.Resolve(url)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if p != l.SVGPath("job_1", "q1") {
		t.Errorf("Resolve returned %s", p)
	}

	if _, err := l.URL(filepath.Join(l.Root(), "..", "elsewhere")); err == nil {
		t.Error("expected error for path outside the data root")
	}
	for _, bad := range []string{"jobs/../../etc/passwd", "other/job_1/job.json", "jobs"} {
		if _, err := l.Resolve(bad); err == nil {
			t.Errorf("expected Resolve(%q) to fail", bad)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"sheet.png":           "sheet.png",
		"../../etc/passwd":    "passwd",
		`C:\Users\me\img.png`: "img.png",
		"":                    DefaultInputName,
		"..":                  DefaultInputName,
		"dir/":                "dir",
	}
	for in, want := range tests {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSaveInput(t *testing.T) {
	l := NewLayout(t.TempDir())

	url, err := l.SaveInput("job_1", "demo.png", []byte("demo-image"))
	if err != nil {
		t.Fatalf("SaveInput failed: %v", err)
	}
	if url != "jobs/job_1/input/demo.png" {
		t.Errorf("unexpected url %s", url)
	}
	data, err := os.ReadFile(filepath.Join(l.InputDir("job_1"), "demo.png"))
	if err != nil {
		t.Fatalf("input not written: %v", err)
	}
	if string(data) != "demo-image" {
		t.Errorf("unexpected content %q", data)
	}
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "file.txt")
	if err := WriteFileAtomic(p, []byte("one"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(p, []byte("two"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}
	data, _ := os.ReadFile(p)
	if string(data) != "two" {
		t.Errorf("expected replaced content, got %q", data)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(p), "*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}
