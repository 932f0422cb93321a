package disk

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nalgeon/be"
)

func TestOpen_Idempotent(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "outputs")

	d1, err := Open(root)
	be.Err(t, err, nil)
	d2, err := Open(root)
	be.Err(t, err, nil)

	be.Equal(t, d1.Root(), d2.Root())
	st, err := os.Stat(root)
	be.Err(t, err, nil)
	be.True(t, st.IsDir())
}

func TestUniquePath_SuffixOrder(t *testing.T) {
	d, err := Open(t.TempDir())
	be.Err(t, err, nil)

	want := []string{
		"111_img1.png",
		"111_img1 (0).png",
		"111_img1 (1).png",
		"111_img1 (2).png",
	}

	for _, name := range want {
		p, err := d.UniquePath("111_img1.png")
		be.Err(t, err, nil)
		be.Equal(t, filepath.Base(p), name)
		be.Err(t, os.WriteFile(p, nil, 0o644), nil)
	}
}

func TestUniquePath_NoExt(t *testing.T) {
	d, err := Open(t.TempDir())
	be.Err(t, err, nil)
	be.Err(t, os.WriteFile(filepath.Join(d.Root(), "111_README"), nil, 0o644), nil)

	p, err := d.UniquePath("111_README")
	be.Err(t, err, nil)
	be.Equal(t, filepath.Base(p), "111_README (0)")
}

func TestSave_SecondRunGetsSuffix(t *testing.T) {
	d, err := Open(t.TempDir())
	be.Err(t, err, nil)

	p1, n, err := d.Save("42_cat.png", strings.NewReader("first"))
	be.Err(t, err, nil)
	be.Equal(t, n, int64(5))

	p2, _, err := d.Save("42_cat.png", strings.NewReader("second"))
	be.Err(t, err, nil)

	be.Equal(t, filepath.Base(p1), "42_cat.png")
	be.Equal(t, filepath.Base(p2), "42_cat (0).png")

	// первая запись не перезаписана
	data, err := os.ReadFile(p1)
	be.Err(t, err, nil)
	be.Equal(t, string(data), "first")
}

func TestSave_LongMultibyteName(t *testing.T) {
	d, err := Open(t.TempDir())
	be.Err(t, err, nil)

	name := FileName("1234567890123456789", strings.Repeat("写", 100)+".png")

	p1, _, err := d.Save(name, strings.NewReader("first"))
	be.Err(t, err, nil)
	p2, _, err := d.Save(name, strings.NewReader("second"))
	be.Err(t, err, nil)

	be.Equal(t, filepath.Base(p1), name)
	be.Equal(t, filepath.Base(p2), strings.TrimSuffix(name, ".png")+" (0).png")
}

func TestSave_ConcurrentSameName(t *testing.T) {
	d, err := Open(t.TempDir())
	be.Err(t, err, nil)

	const workers = 20
	paths := make([]string, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			paths[i], _, errs[i] = d.Save("1_same.bin", strings.NewReader("x"))
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, workers)
	for i := range workers {
		be.Err(t, errs[i], nil)
		be.Equal(t, seen[paths[i]], false)
		seen[paths[i]] = true
	}

	entries, err := os.ReadDir(d.Root())
	be.Err(t, err, nil)
	be.Equal(t, len(entries), workers)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestSave_RemovesPartialFile(t *testing.T) {
	d, err := Open(t.TempDir())
	be.Err(t, err, nil)

	r := io.MultiReader(strings.NewReader("partial"), failingReader{})
	_, _, err = d.Save("1_broken.png", r)
	be.Err(t, err, "connection reset")

	entries, err := os.ReadDir(d.Root())
	be.Err(t, err, nil)
	be.Equal(t, len(entries), 0)
}
