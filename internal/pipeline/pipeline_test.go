package pipeline

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/matejcik/fastsum/internal/digest"
)

func run(t *testing.T, paths []string) (stdout, stderr string) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	o := New(Options{
		FileWorkers: 4,
		HashWorkers: runtime.NumCPU(),
		Stdout:      &outBuf,
		Stderr:      &errBuf,
	})
	o.Run(paths)
	return outBuf.String(), errBuf.String()
}

// expectedDigest computes the two-level digest independently of the
// pipeline, per spec.md §6's bit-exact definition, for use as a test
// oracle.
func expectedDigest(data []byte) string {
	if len(data) == 0 {
		return "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	}
	var concat []byte
	for i := 0; i < len(data); i += digest.BlockSize {
		end := i + digest.BlockSize
		if end > len(data) {
			end = len(data)
		}
		sum := sha256.Sum256(data[i:end])
		concat = append(concat, sum[:]...)
	}
	final := sha256.Sum256(concat)
	return hex.EncodeToString(final[:])
}

// =============================================================================
// Section 8.1: Digest boundary scenarios
// =============================================================================

func TestRunBoundaryFileSizes(t *testing.T) {
	sizes := map[string]int{
		"empty":             0,
		"one byte":          1,
		"exactly one block": digest.BlockSize,
		"block plus one":    digest.BlockSize + 1,
		"three blocks":      3 * digest.BlockSize,
	}

	for name, size := range sizes {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, "f.bin")
			data := bytes.Repeat([]byte{0x5a}, size)
			if err := os.WriteFile(path, data, 0o644); err != nil {
				t.Fatal(err)
			}

			stdout, stderr := run(t, []string{path})
			if stderr != "" {
				t.Fatalf("unexpected stderr: %q", stderr)
			}

			want := expectedDigest(data) + "  " + path + "\n"
			if stdout != want {
				t.Fatalf("stdout = %q, want %q", stdout, want)
			}
		})
	}
}

func TestRunEmptyFileMatchesKnownSHA256OfEmptyString(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _ := run(t, []string{path})
	if !strings.HasPrefix(stdout, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855  ") {
		t.Fatalf("stdout = %q, want empty-string SHA256 prefix", stdout)
	}
}

// =============================================================================
// Section 8.2: Directory walking and output properties
// =============================================================================

func TestRunDirectoryEmitsEveryFileExactlyOnce(t *testing.T) {
	dir := t.TempDir()
	names := []string{"a.txt", "b.txt", "sub/c.txt", "sub/deeper/d.txt"}
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	stdout, stderr := run(t, []string{dir})
	if stderr != "" {
		t.Fatalf("unexpected stderr: %q", stderr)
	}

	lines := splitLines(stdout)
	if len(lines) != len(names) {
		t.Fatalf("got %d output lines, want %d:\n%s", len(lines), len(names), stdout)
	}

	seen := map[string]int{}
	for _, line := range lines {
		parts := strings.SplitN(line, "  ", 2)
		if len(parts) != 2 || len(parts[0]) != 64 {
			t.Fatalf("malformed output line %q", line)
		}
		seen[parts[1]]++
	}
	for _, n := range names {
		p := filepath.Join(dir, n)
		if seen[p] != 1 {
			t.Errorf("file %s emitted %d times, want 1", p, seen[p])
		}
	}
}

func TestRunNonexistentPathReportsError(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")
	stdout, stderr := run(t, []string{missing})
	if stdout != "" {
		t.Fatalf("unexpected stdout: %q", stdout)
	}
	want := "Error processing " + missing + ": "
	if !strings.HasPrefix(stderr, want) {
		t.Fatalf("stderr = %q, want prefix %q", stderr, want)
	}
}

func TestRunManySmallFilesAllComplete(t *testing.T) {
	dir := t.TempDir()
	const n = 256
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, fmt.Sprintf("f%d", i))
		if err := os.WriteFile(p, []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	stdout, stderr := run(t, []string{dir})
	if stderr != "" {
		t.Fatalf("unexpected stderr: %q", stderr)
	}
	if got := len(splitLines(stdout)); got != n {
		t.Fatalf("got %d output lines, want %d", got, n)
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	sc := bufio.NewScanner(strings.NewReader(s))
	var out []string
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out
}

