package execute

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/franz/toki/internal/media"
	"github.com/franz/toki/internal/meta"
	"github.com/franz/toki/internal/util"
	"github.com/spf13/afero"
)

var fixedMtime = time.Date(2022, 5, 14, 9, 30, 0, 0, time.UTC)

func writeFile(t *testing.T, fsys afero.Fs, path string, content []byte) {
	t.Helper()

	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := afero.WriteFile(fsys, path, content, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if err := fsys.Chtimes(path, fixedMtime, fixedMtime); err != nil {
		t.Fatalf("Failed to set mtime: %v", err)
	}
}

func readFile(t *testing.T, fsys afero.Fs, path string) []byte {
	t.Helper()

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return data
}

func exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()

	ok, err := afero.Exists(fsys, path)
	if err != nil {
		t.Fatalf("Failed to stat %s: %v", path, err)
	}
	return ok
}

// plannedRecord writes src and returns a record planned to dest
func plannedRecord(t *testing.T, fsys afero.Fs, src, dest string, action media.Action, content []byte) *media.Record {
	t.Helper()

	writeFile(t, fsys, src, content)
	info, err := fsys.Stat(src)
	if err != nil {
		t.Fatalf("Failed to stat source: %v", err)
	}

	r := media.NewRecord(src, info)
	digest, err := meta.NewHasher(fsys, meta.AlgoMD5, 0, nil).Sum(context.Background(), src)
	if err != nil {
		t.Fatalf("Failed to hash source: %v", err)
	}
	r.Digest = string(digest)
	r.ContentHash = digest.Short()
	r.PlannedPath = dest
	r.PlannedName = filepath.Base(dest)
	r.Action = action
	if err := r.Advance(media.StatusPlanned); err != nil {
		t.Fatalf("Failed to plan record: %v", err)
	}
	return r
}

func newApplyExecutor(t *testing.T, fsys afero.Fs, verify VerifyMode) *Executor {
	t.Helper()

	strategy, err := NewApply(&ApplyConfig{
		Fs:     fsys,
		Verify: verify,
		Hasher: meta.NewHasher(fsys, meta.AlgoMD5, 0, nil),
	})
	if err != nil {
		t.Fatalf("NewApply failed: %v", err)
	}
	return New(&Config{Strategy: strategy})
}

// crossDeviceFs fails renames of one path the way os.Rename does across mounts
type crossDeviceFs struct {
	afero.Fs
	from string
}

func (c *crossDeviceFs) Rename(oldname, newname string) error {
	if oldname == c.from {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EXDEV}
	}
	return c.Fs.Rename(oldname, newname)
}

func TestApplyCopy(t *testing.T) {
	fsys := afero.NewMemMapFs()
	content := []byte("jpeg bytes")
	src := "/photos/IMG_0001.JPG"
	dest := "/library/2024/01/23/IMG_0001.JPG"
	r := plannedRecord(t, fsys, src, dest, media.ActionCopy, content)

	out := newApplyExecutor(t, fsys, VerifySize).Execute(context.Background(), r)
	if out.Err != nil {
		t.Fatalf("Execute failed: %v", out.Err)
	}
	if r.Status != media.StatusApplied {
		t.Errorf("Status = %s, want applied", r.Status)
	}
	if out.Bytes != int64(len(content)) {
		t.Errorf("Bytes = %d, want %d", out.Bytes, len(content))
	}

	if got := readFile(t, fsys, dest); !bytes.Equal(got, content) {
		t.Errorf("Content mismatch: got %q", got)
	}
	if !exists(t, fsys, src) {
		t.Error("Copy removed the source")
	}
	if exists(t, fsys, dest+PartSuffix) {
		t.Error(".part file was not cleaned up")
	}

	info, err := fsys.Stat(dest)
	if err != nil {
		t.Fatalf("Stat dest: %v", err)
	}
	if !info.ModTime().Equal(fixedMtime) {
		t.Errorf("ModTime = %v, want %v", info.ModTime(), fixedMtime)
	}
}

func TestApplyCopyReplacesStalePart(t *testing.T) {
	fsys := afero.NewMemMapFs()
	dest := "/library/2024/01/23/a.jpg"
	r := plannedRecord(t, fsys, "/photos/a.jpg", dest, media.ActionCopy, []byte("fresh"))
	writeFile(t, fsys, dest+PartSuffix, []byte("half-written leftover"))

	out := newApplyExecutor(t, fsys, VerifyHash).Execute(context.Background(), r)
	if out.Err != nil {
		t.Fatalf("Execute failed: %v", out.Err)
	}
	if got := string(readFile(t, fsys, dest)); got != "fresh" {
		t.Errorf("dest = %q, want fresh", got)
	}
	if exists(t, fsys, dest+PartSuffix) {
		t.Error("stale .part file survived")
	}
}

func TestApplyMove(t *testing.T) {
	fsys := afero.NewMemMapFs()
	src := "/photos/IMG_0001.JPG"
	dest := "/photos/20240123_101500_A_Pixel_7_0badf00d.jpg"
	r := plannedRecord(t, fsys, src, dest, media.ActionMove, []byte("content"))

	out := newApplyExecutor(t, fsys, VerifySize).Execute(context.Background(), r)
	if out.Err != nil {
		t.Fatalf("Execute failed: %v", out.Err)
	}
	if r.Status != media.StatusApplied {
		t.Errorf("Status = %s, want applied", r.Status)
	}
	if exists(t, fsys, src) {
		t.Error("Source still exists after move")
	}
	if got := string(readFile(t, fsys, dest)); got != "content" {
		t.Errorf("dest = %q", got)
	}
}

func TestApplyMoveCrossDevice(t *testing.T) {
	mem := afero.NewMemMapFs()
	src := "/mnt/card/DCIM/100/IMG_0002.JPG"
	dest := "/library/2024/02/01/IMG_0002.JPG"
	r := plannedRecord(t, mem, src, dest, media.ActionMove, []byte("across devices"))

	fsys := &crossDeviceFs{Fs: mem, from: src}
	out := newApplyExecutor(t, fsys, VerifyHash).Execute(context.Background(), r)
	if out.Err != nil {
		t.Fatalf("Execute failed: %v", out.Err)
	}
	if r.Status != media.StatusApplied {
		t.Errorf("Status = %s, want applied", r.Status)
	}
	if exists(t, mem, src) {
		t.Error("Source not removed after cross-device move")
	}
	if got := string(readFile(t, mem, dest)); got != "across devices" {
		t.Errorf("dest = %q", got)
	}
	if exists(t, mem, dest+PartSuffix) {
		t.Error(".part file was not cleaned up")
	}
}

func TestApplyMoveRestoresSourceOnVerifyFailure(t *testing.T) {
	src := "/photos/a.jpg"
	dest := "/library/2024/01/23/a.jpg"

	t.Run("restored", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		r := plannedRecord(t, fsys, src, dest, media.ActionMove, []byte("abc"))
		// Source rewritten between planning and transfer
		writeFile(t, fsys, src, []byte("abcdef"))

		out := newApplyExecutor(t, fsys, VerifySize).Execute(context.Background(), r)
		if !errors.Is(out.Err, util.ErrTransfer) {
			t.Fatalf("Err = %v, want ErrTransfer", out.Err)
		}
		if r.Status != media.StatusFailed {
			t.Errorf("Status = %s, want failed", r.Status)
		}
		if got := string(readFile(t, fsys, src)); got != "abcdef" {
			t.Errorf("source = %q, want it back in place", got)
		}
		if exists(t, fsys, dest) {
			t.Error("destination left behind after failed verification")
		}
	})

	t.Run("restore fails", func(t *testing.T) {
		mem := afero.NewMemMapFs()
		r := plannedRecord(t, mem, src, dest, media.ActionMove, []byte("abc"))
		writeFile(t, mem, src, []byte("abcdef"))

		fsys := &crossDeviceFs{Fs: mem, from: dest}
		out := newApplyExecutor(t, fsys, VerifySize).Execute(context.Background(), r)
		if !errors.Is(out.Err, util.ErrTransfer) {
			t.Fatalf("Err = %v, want ErrTransfer", out.Err)
		}
		for _, want := range []string{src, dest, "restoring"} {
			if !strings.Contains(out.Err.Error(), want) {
				t.Errorf("error %q should mention %q", out.Err, want)
			}
		}
	})
}

// caseFoldFs lowercases every path, like a case-insensitive volume
type caseFoldFs struct {
	afero.Fs
}

func (c caseFoldFs) Stat(name string) (os.FileInfo, error) {
	return c.Fs.Stat(strings.ToLower(name))
}

func (c caseFoldFs) Rename(oldname, newname string) error {
	return c.Fs.Rename(strings.ToLower(oldname), strings.ToLower(newname))
}

func (c caseFoldFs) MkdirAll(path string, perm os.FileMode) error {
	return c.Fs.MkdirAll(strings.ToLower(path), perm)
}

func (c caseFoldFs) Open(name string) (afero.File, error) {
	return c.Fs.Open(strings.ToLower(name))
}

func (c caseFoldFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	return c.Fs.OpenFile(strings.ToLower(name), flag, perm)
}

func (c caseFoldFs) Remove(name string) error {
	return c.Fs.Remove(strings.ToLower(name))
}

func TestApplyMoveCaseOnlyRename(t *testing.T) {
	root := t.TempDir()
	base := afero.NewBasePathFs(afero.NewOsFs(), root)
	src := "/in/20241130_143022_a_iphone_0badf00d.JPG"
	dest := "/in/20241130_143022_a_iphone_0badf00d.jpg"
	// Stored under the folded name
	r := plannedRecord(t, base, strings.ToLower(src), dest, media.ActionMove, []byte("pixels"))
	r.SourcePath = src

	out := newApplyExecutor(t, caseFoldFs{base}, VerifySize).Execute(context.Background(), r)
	if out.Err != nil {
		t.Fatalf("Execute failed: %v", out.Err)
	}
	if r.Status != media.StatusApplied {
		t.Errorf("Status = %s, want applied", r.Status)
	}
}

func TestApplyCopyNeverLandsOnSource(t *testing.T) {
	root := t.TempDir()
	base := afero.NewBasePathFs(afero.NewOsFs(), root)
	src := "/in/a.JPG"
	dest := "/in/a.jpg"
	r := plannedRecord(t, base, strings.ToLower(src), dest, media.ActionCopy, []byte("pixels"))
	r.SourcePath = src

	out := newApplyExecutor(t, caseFoldFs{base}, VerifySize).Execute(context.Background(), r)
	if !errors.Is(out.Err, util.ErrConflict) {
		t.Fatalf("Err = %v, want ErrConflict", out.Err)
	}
}

func TestApplyRefusesExistingDestination(t *testing.T) {
	for _, action := range []media.Action{media.ActionCopy, media.ActionMove} {
		t.Run(string(action), func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			src := "/photos/a.jpg"
			dest := "/library/2024/01/01/a.jpg"
			r := plannedRecord(t, fsys, src, dest, action, []byte("new"))
			// Appears after planning
			writeFile(t, fsys, dest, []byte("someone else's"))

			out := newApplyExecutor(t, fsys, VerifySize).Execute(context.Background(), r)
			if !errors.Is(out.Err, util.ErrConflict) {
				t.Fatalf("Err = %v, want ErrConflict", out.Err)
			}
			if r.Status != media.StatusFailed || !errors.Is(r.Err, util.ErrConflict) {
				t.Errorf("record = %s / %v, want failed with conflict", r.Status, r.Err)
			}
			if got := string(readFile(t, fsys, dest)); got != "someone else's" {
				t.Errorf("destination overwritten: %q", got)
			}
			if got := string(readFile(t, fsys, src)); got != "new" {
				t.Errorf("source changed: %q", got)
			}
		})
	}
}

func TestApplyMissingSource(t *testing.T) {
	fsys := afero.NewMemMapFs()
	src := "/photos/gone.jpg"
	dest := "/library/2024/01/01/gone.jpg"
	r := plannedRecord(t, fsys, src, dest, media.ActionCopy, []byte("x"))
	if err := fsys.Remove(src); err != nil {
		t.Fatal(err)
	}

	out := newApplyExecutor(t, fsys, VerifySize).Execute(context.Background(), r)
	if !errors.Is(out.Err, util.ErrTransfer) {
		t.Fatalf("Err = %v, want ErrTransfer", out.Err)
	}
	if !errors.Is(out.Err, fs.ErrNotExist) {
		t.Errorf("Err = %v, want cause to be not-exist", out.Err)
	}
	if r.Status != media.StatusFailed {
		t.Errorf("Status = %s, want failed", r.Status)
	}
	if exists(t, fsys, dest) || exists(t, fsys, dest+PartSuffix) {
		t.Error("Failed copy left files at the destination")
	}
}

func TestApplyCopyCancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	src := "/photos/big.mov"
	dest := "/library/2024/01/01/big.mov"
	r := plannedRecord(t, fsys, src, dest, media.ActionCopy, bytes.Repeat([]byte("v"), 4096))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newApplyExecutor(t, fsys, VerifySize).Execute(ctx, r)
	if !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("Err = %v, want context.Canceled", out.Err)
	}
	if exists(t, fsys, dest) || exists(t, fsys, dest+PartSuffix) {
		t.Error("Cancelled copy left partial output")
	}
	if !exists(t, fsys, src) {
		t.Error("Cancelled copy removed the source")
	}
}

func TestVerifyDest(t *testing.T) {
	tests := []struct {
		name    string
		mode    VerifyMode
		dest    []byte
		wantErr bool
	}{
		{"none accepts any content", VerifyNone, []byte("zzzzz"), false},
		{"size match", VerifySize, []byte("abcde"), false},
		{"size mismatch", VerifySize, []byte("abc"), true},
		{"hash match", VerifyHash, []byte("abcde"), false},
		{"hash mismatch same size", VerifyHash, []byte("abcdf"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			dest := "/library/x.jpg"
			r := plannedRecord(t, fsys, "/photos/x.jpg", dest, media.ActionCopy, []byte("abcde"))
			writeFile(t, fsys, dest, tt.dest)

			strategy, err := NewApply(&ApplyConfig{
				Fs:     fsys,
				Verify: tt.mode,
				Hasher: meta.NewHasher(fsys, meta.AlgoMD5, 0, nil),
			})
			if err != nil {
				t.Fatal(err)
			}

			err = strategy.verifyDest(context.Background(), r, dest)
			if (err != nil) != tt.wantErr {
				t.Errorf("verifyDest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, util.ErrTransfer) {
				t.Errorf("verify error %v is not ErrTransfer", err)
			}
		})
	}
}

func TestVerifyDestMissing(t *testing.T) {
	fsys := afero.NewMemMapFs()
	r := plannedRecord(t, fsys, "/photos/x.jpg", "/library/x.jpg", media.ActionCopy, []byte("abc"))

	strategy, err := NewApply(&ApplyConfig{Fs: fsys, Verify: VerifyNone})
	if err != nil {
		t.Fatal(err)
	}
	if err := strategy.verifyDest(context.Background(), r, "/library/x.jpg"); err == nil {
		t.Error("verifyDest() accepted a missing destination")
	}
}

func TestSimulateTouchesNothing(t *testing.T) {
	mem := afero.NewMemMapFs()
	src := "/photos/a.jpg"
	dest := "/library/2024/01/01/a.jpg"
	r := plannedRecord(t, mem, src, dest, media.ActionMove, []byte("abc"))

	exec := New(&Config{Strategy: Simulate{}})
	if !exec.DryRun() {
		t.Fatal("Simulate executor should report dry-run")
	}

	out := exec.Execute(context.Background(), r)
	if out.Err != nil {
		t.Fatalf("Execute failed: %v", out.Err)
	}
	if r.Status != media.StatusPlanned {
		t.Errorf("Status = %s, want planned", r.Status)
	}
	if out.Bytes != 3 {
		t.Errorf("Bytes = %d, want 3", out.Bytes)
	}
	if !exists(t, mem, src) || exists(t, mem, filepath.Dir(dest)) {
		t.Error("Dry run changed the filesystem")
	}
}

func TestExecuteIgnoresUnplanned(t *testing.T) {
	fsys := afero.NewMemMapFs()
	exec := newApplyExecutor(t, fsys, VerifySize)

	r := media.NewRecord("/photos/a.jpg", nil)
	if err := r.Skip(media.ReasonDuplicate); err != nil {
		t.Fatal(err)
	}

	out := exec.Execute(context.Background(), r)
	if out.Err != nil || r.Status != media.StatusSkipped {
		t.Errorf("Execute changed a skipped record: %s / %v", r.Status, out.Err)
	}
}

func TestNewApplyValidation(t *testing.T) {
	if _, err := NewApply(&ApplyConfig{}); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("missing fs: err = %v", err)
	}
	if _, err := NewApply(&ApplyConfig{Fs: afero.NewMemMapFs(), Verify: VerifyHash}); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("hash without hasher: err = %v", err)
	}
}

func TestParseVerifyMode(t *testing.T) {
	tests := []struct {
		in      string
		want    VerifyMode
		wantErr bool
	}{
		{"", VerifySize, false},
		{"none", VerifyNone, false},
		{"SIZE", VerifySize, false},
		{" hash ", VerifyHash, false},
		{"checksum", "", true},
	}
	for _, tt := range tests {
		got, err := ParseVerifyMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseVerifyMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestCopyWithContext(t *testing.T) {
	src := strings.Repeat("0123456789", 100)
	var dst bytes.Buffer

	n, err := copyWithContext(context.Background(), &dst, strings.NewReader(src), 7)
	if err != nil {
		t.Fatalf("copyWithContext failed: %v", err)
	}
	if n != int64(len(src)) || dst.String() != src {
		t.Errorf("copied %d bytes, content match %v", n, dst.String() == src)
	}
}
