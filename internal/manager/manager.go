package manager

import (
	"cmp"
	"context"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"attachget/internal/config"
	"attachget/internal/disk"
	"attachget/internal/loader"
	"attachget/internal/model"
	"attachget/internal/observer"
)

type (
	Run  = model.Run
	File = model.File
)

type Pager interface {
	Messages(ctx context.Context, channelID string) iter.Seq2[model.Message, error]
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) (loader.Body, error)
}

type Saver interface {
	Save(name string, r io.Reader) (path string, n int64, err error)
}

// Recorder сохраняет сводку запуска (memstor или status).
type Recorder interface {
	Save(ctx context.Context, run Run) error
}

// Mirror дополнительно выгружает сохранённый файл во внешнее хранилище.
type Mirror interface {
	Mirror(ctx context.Context, channelID, path string) error
}

type Option func(*Manager)

func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithMirror добавляет хранилище-зеркало. Их может быть несколько.
func WithMirror(mr Mirror) Option {
	return func(m *Manager) { m.mirrors = append(m.mirrors, mr) }
}

type Manager struct {
	cfg       config.Manager
	pager     Pager
	fetcher   Fetcher
	saver     Saver
	recorder  Recorder
	mirrors   []Mirror
	mu        sync.Mutex
	observers []observer.Observer
	now       func() time.Time
}

func New(cfg config.Manager, pager Pager, fetcher Fetcher, saver Saver, opts ...Option) *Manager {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 1
	}
	m := &Manager{
		cfg:     cfg,
		pager:   pager,
		fetcher: fetcher,
		saver:   saver,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) AddObserver(o observer.Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *Manager) notify(file File) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.observers {
		o.Update(file)
	}
}

func (m *Manager) record(ctx context.Context, run Run) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.Save(ctx, run); err != nil {
		slog.Warn("record run failed", "op", "record", "runID", run.ID, "error", err)
	}
}

// Run скачивает все вложения канала.
//
// Каждое сообщение с вложениями становится отдельной задачей; одновременно
// выполняется не более MaxActive задач, при заполнении пула обход истории
// ждёт. Ошибки страниц, загрузки и записи учитываются в сводке и не
// прерывают запуск. Run возвращается только после завершения всех задач;
// ошибка возвращается лишь при отмене ctx.
func (m *Manager) Run(ctx context.Context, channelID string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		ChannelID: channelID,
		Status:    model.RunRunning,
		StartedAt: m.now(),
	}
	log := slog.With("op", "run", "runID", run.ID, "channelID", channelID)
	log.Info("run started")
	m.record(ctx, run)

	var (
		mu     sync.Mutex // защищает run
		wg     sync.WaitGroup
		runErr error
	)
	sem := make(chan struct{}, m.cfg.MaxActive)

loop:
	for msg, err := range m.pager.Messages(ctx, channelID) {
		if err != nil {
			if ctx.Err() != nil {
				runErr = ctx.Err()
				break loop
			}
			log.Warn("fetch messages failed", "error", err)
			mu.Lock()
			run.PageErrors++
			mu.Unlock()
			continue
		}

		mu.Lock()
		run.Messages++
		mu.Unlock()

		if len(msg.Attachments) == 0 {
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			files := m.processTask(ctx, msg)

			mu.Lock()
			run.Add(files)
			mu.Unlock()
		}()
	}

	wg.Wait()

	run.FinishedAt = m.now()
	run.Status = model.RunFinished
	if runErr != nil {
		run.Status = model.RunFailed
		run.Error = runErr.Error()
	}

	log.Info("run finished",
		"status", run.Status,
		"messages", run.Messages,
		"tasks", run.Tasks,
		"saved", run.Saved,
		"failed", run.Failed,
		"bytes", run.Bytes,
		"pageErrors", run.PageErrors,
		"duration", run.FinishedAt.Sub(run.StartedAt))

	m.record(context.WithoutCancel(ctx), run)
	return run, runErr
}

// processTask обрабатывает вложения одного сообщения по очереди.
func (m *Manager) processTask(ctx context.Context, msg model.Message) []File {
	files := make([]File, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		file := m.processAttachment(ctx, msg.ChannelID, att)
		m.notify(file)
		files = append(files, file)
	}
	return files
}

func (m *Manager) processAttachment(ctx context.Context, channelID string, att model.Attachment) File {
	log := slog.With("op", "download", "attachmentID", att.ID, "messageID", att.MessageID)

	file := File{
		AttachmentID: att.ID,
		MessageID:    att.MessageID,
		URL:          att.URL,
		OrigName:     att.Filename,
		Name:         disk.FileName(att.ID, att.Filename),
	}

	body, err := m.fetcher.Fetch(ctx, att.URL)
	if err != nil {
		log.Warn("fetch failed", "error", err)
		file.Error = err.Error()
		return file
	}
	defer body.Close()

	file.Name = disk.WithExt(file.Name, cmp.Or(body.ContentType, att.ContentType))

	path, n, err := m.saver.Save(file.Name, body)
	file.Size = n
	if err != nil {
		log.Warn("write failed", "error", err)
		file.Error = err.Error()
		return file
	}
	file.Path = path

	file.Mirrored = len(m.mirrors) > 0
	for _, mr := range m.mirrors {
		if err := mr.Mirror(ctx, channelID, path); err != nil {
			log.Warn("mirror failed", "path", path, "error", err)
			file.Mirrored = false
		}
	}

	log.Debug("saved", "path", path, "size", n)
	return file
}
