package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{90 * time.Second, "00:01:30.000"},
		{3*time.Hour + 2*time.Minute + 1500*time.Millisecond, "03:02:01.500"},
		{0, "00:00:00.000"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.d); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	cases := []struct {
		sec  float64
		want string
	}{
		{2.5, "2.5"},
		{2.0, "2"},
		{0.5, "0.5"},
		{0, "0"},
		{1.125, "1.125"},
	}
	for _, tc := range cases {
		if got := FormatSeconds(tc.sec); got != tc.want {
			t.Errorf("FormatSeconds(%g) = %q, want %q", tc.sec, got, tc.want)
		}
	}
}

func TestParseFrameRate(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"30/1", 30},
		{"30000/1001", 30000.0 / 1001.0},
		{"0/0", 0},
		{"garbage", 0},
	}
	for _, tc := range cases {
		if got := ParseFrameRate(tc.in); got != tc.want {
			t.Errorf("ParseFrameRate(%q) = %g, want %g", tc.in, got, tc.want)
		}
	}
}

func TestParseSecondsCSV(t *testing.T) {
	got, err := ParseSecondsCSV("2.0, 1.5,2.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []float64{2.0, 1.5, 2.5}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("value %d = %g, want %g", i, got[i], want[i])
		}
	}

	if _, err := ParseSecondsCSV("2.0,abc"); err == nil {
		t.Error("bad value should fail")
	}
	if got, err := ParseSecondsCSV(""); err != nil || got != nil {
		t.Errorf("empty input should yield nothing, got %v, %v", got, err)
	}
}

func TestParseSize(t *testing.T) {
	w, h, err := ParseSize("1080x1920")
	if err != nil || w != 1080 || h != 1920 {
		t.Errorf("ParseSize = %d, %d, %v", w, h, err)
	}
	w, h, err = ParseSize(" 720X1280 ")
	if err != nil || w != 720 || h != 1280 {
		t.Errorf("ParseSize should accept case and padding: %d, %d, %v", w, h, err)
	}
	for _, bad := range []string{"", "1080", "1080x", "ax1920", "0x1920"} {
		if _, _, err := ParseSize(bad); err == nil {
			t.Errorf("ParseSize(%q) should fail", bad)
		}
	}
}

func TestIsImageFile(t *testing.T) {
	for _, name := range []string{"a.png", "b.JPG", "c.jpeg", "d.webp"} {
		if !IsImageFile(name) {
			t.Errorf("IsImageFile(%q) = false", name)
		}
	}
	for _, name := range []string{"list.txt", "clip.mp4", "noext"} {
		if IsImageFile(name) {
			t.Errorf("IsImageFile(%q) = true", name)
		}
	}
}

func TestCleanupFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(a, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// missing files are ignored, existing ones removed
	CleanupFiles(a, filepath.Join(dir, "missing.txt"))
	if FileExists(a) {
		t.Error("a.txt should be removed")
	}
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if !FileExists(dir) {
		t.Error("EnsureDir should create nested directories")
	}
	if FileExists(filepath.Join(dir, "missing.png")) {
		t.Error("FileExists should be false for missing paths")
	}
}
