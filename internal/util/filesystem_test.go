package util

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/afero"
)

func TestDetectFilesystemCaseSensitivity(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "Library")
	if err := os.Mkdir(tempDir, 0755); err != nil {
		t.Fatal(err)
	}
	osFs := afero.NewOsFs()

	caseSensitive, err := DetectFilesystemCaseSensitivity(osFs, tempDir)
	if err != nil {
		t.Fatalf("DetectFilesystemCaseSensitivity failed: %v", err)
	}
	t.Logf("Detected filesystem case sensitivity: %v (OS: %s)", caseSensitive, runtime.GOOS)

	// Verify the detection independently
	f, err := os.Create(filepath.Join(tempDir, "IMG_0001.JPG"))
	if err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}
	f.Close()

	_, err = os.Stat(filepath.Join(tempDir, "img_0001.jpg"))
	collides := err == nil

	if caseSensitive && collides {
		t.Error("Case-sensitive FS detected, but names differing in case collide")
	}
	if !caseSensitive && !collides {
		t.Error("Case-insensitive FS detected, but names differing in case don't collide")
	}

	// Detection is read-only
	entries, _ := os.ReadDir(tempDir)
	if len(entries) != 1 {
		t.Errorf("Expected only the test file, got %d entries", len(entries))
	}
}

func TestDetectFilesystemCaseSensitivity_MemMapFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/photos", 0755); err != nil {
		t.Fatal(err)
	}

	caseSensitive, err := DetectFilesystemCaseSensitivity(fs, "/photos")
	if err != nil {
		t.Fatalf("DetectFilesystemCaseSensitivity failed: %v", err)
	}
	if !caseSensitive {
		t.Error("MemMapFs should be detected as case-sensitive")
	}

	// Missing directories are probed through their existing ancestors
	caseSensitive, err = DetectFilesystemCaseSensitivity(fs, "/photos/2024/01")
	if err != nil || !caseSensitive {
		t.Errorf("Expected case-sensitive via ancestor, got %v, %v", caseSensitive, err)
	}
	if exists, _ := afero.DirExists(fs, "/photos/2024"); exists {
		t.Error("Detection must not create directories")
	}
}

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		name          string
		path          string
		caseSensitive bool
		expected      string
	}{
		{"case-sensitive: no change", "/Photos/2024/IMG_0001.JPG", true, "/Photos/2024/IMG_0001.JPG"},
		{"case-insensitive: lowercase", "/Photos/2024/IMG_0001.JPG", false, "/photos/2024/img_0001.jpg"},
		{"case-insensitive: with spaces", "/Trip Album/Day One/DSC 42.heic", false, "/trip album/day one/dsc 42.heic"},
		{"case-sensitive: removes trailing slash", "/Photos/2024/", true, "/Photos/2024"},
		{"case-insensitive: resolves ..", "/Photos/2024/../2023/A.jpg", false, "/photos/2023/a.jpg"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := NormalizePath(tc.path, tc.caseSensitive)
			if result != tc.expected {
				t.Errorf("Expected %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestPathsEqual(t *testing.T) {
	testCases := []struct {
		name          string
		path1         string
		path2         string
		caseSensitive bool
		expected      bool
	}{
		{"case-sensitive: exact match", "/dest/2024/01/23/a.jpg", "/dest/2024/01/23/a.jpg", true, true},
		{"case-sensitive: different case", "/dest/2024/01/23/a.jpg", "/dest/2024/01/23/A.JPG", true, false},
		{"case-insensitive: different case", "/dest/2024/01/23/a.jpg", "/dest/2024/01/23/A.JPG", false, true},
		{"case-insensitive: different files", "/dest/2024/01/23/a.jpg", "/dest/2024/01/23/b.jpg", false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := PathsEqual(tc.path1, tc.path2, tc.caseSensitive)
			if result != tc.expected {
				t.Errorf("PathsEqual(%q, %q, caseSensitive=%v): expected %v, got %v",
					tc.path1, tc.path2, tc.caseSensitive, tc.expected, result)
			}
		})
	}
}

func TestIsWithin(t *testing.T) {
	tests := []struct {
		path, root string
		want       bool
	}{
		{"/photos/sorted/2024", "/photos/sorted", true},
		{"/photos/sorted", "/photos/sorted", true},
		{"/photos/sorted-old", "/photos/sorted", false},
		{"/photos", "/photos/sorted", false},
		{"/photos/..sorted", "/photos", true},
	}
	for _, tt := range tests {
		if got := IsWithin(tt.path, tt.root); got != tt.want {
			t.Errorf("IsWithin(%q, %q) = %v, want %v", tt.path, tt.root, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{-2048, "-2.0 KiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.n); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
