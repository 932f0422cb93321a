package observer

import (
	"fmt"
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"attachget/internal/model"
)

// ProgressBar показывает в терминале число сохранённых и упавших файлов.
// Общее количество заранее неизвестно, поэтому используется спиннер.
type ProgressBar struct {
	mu     sync.Mutex
	bar    *progressbar.ProgressBar
	saved  int
	failed int
	bytes  int64
}

func NewProgressBar(w io.Writer) *ProgressBar {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Downloading attachments"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
	)
	return &ProgressBar{bar: bar}
}

func (p *ProgressBar) Update(file model.File) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if file.OK() {
		p.saved++
		p.bytes += file.Size
	} else {
		p.failed++
	}
	p.bar.Describe(fmt.Sprintf("Downloading attachments (failed: %d)", p.failed))
	_ = p.bar.Add(1)
}

func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}

// Counts возвращает число сохранённых и упавших файлов и объём сохранённого.
func (p *ProgressBar) Counts() (saved, failed int, bytes int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saved, p.failed, p.bytes
}
