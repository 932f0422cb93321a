package disk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644

	// maxCandidates ограничивает перебор суффиксов, чтобы не зациклиться
	// на каталоге, в который нельзя писать.
	maxCandidates = 100_000
)

var ErrNoFreeName = errors.New("no free file name")

// Dir: каталог для сохранения вложений.
type Dir struct {
	root string
}

// Open создаёт каталог, если его нет. Повторный вызов безопасен.
func Open(root string) (*Dir, error) {
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("create output dir failed: %w", err)
	}
	return &Dir{root: root}, nil
}

func (d *Dir) Root() string {
	return d.root
}

// candidate возвращает i-й вариант пути: при i < 0 само имя,
// иначе "stem (i).ext".
func (d *Dir) candidate(name string, i int) string {
	if i < 0 {
		return filepath.Join(d.root, name)
	}
	stem, ext := splitExt(name)
	return filepath.Join(d.root, stem+" ("+strconv.Itoa(i)+")"+ext)
}

// UniquePath перебирает name, "stem (0).ext", "stem (1).ext", ... и возвращает
// первый путь, которого нет на диске. Результат не резервируется: между
// проверкой и записью файл может создать кто-то другой, для записи
// используйте Save.
func (d *Dir) UniquePath(name string) (string, error) {
	for i := -1; i < maxCandidates; i++ {
		p := d.candidate(name, i)
		_, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat %s failed: %w", p, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoFreeName, name)
}

// Save записывает r в первый свободный путь в том же порядке перебора, что и
// UniquePath. Файл открывается с O_EXCL, поэтому две записи никогда не
// попадут в один путь. При ошибке записи частичный файл удаляется.
func (d *Dir) Save(name string, r io.Reader) (string, int64, error) {
	f, err := d.create(name)
	if err != nil {
		return "", 0, err
	}
	path := f.Name()

	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", n, fmt.Errorf("write %s failed: %w", path, err)
	}

	return path, n, nil
}

func (d *Dir) create(name string) (*os.File, error) {
	for i := -1; i < maxCandidates; i++ {
		p := d.candidate(name, i)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create %s failed: %w", p, err)
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoFreeName, name)
}
