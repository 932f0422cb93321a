// pipeline_test.go
package test

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gin-gonic/gin"

	"attachget/internal/api"
	"attachget/internal/config"
	"attachget/internal/disk"
	"attachget/internal/history"
	"attachget/internal/loader"
	"attachget/internal/logger"
	"attachget/internal/manager"
	"attachget/internal/memstor"
	"attachget/internal/model"
)

// fakeChannel отдаёт историю канала страницами, как REST Discord:
// от новых сообщений к старым, курсор before равен ID сообщения.
type fakeChannel struct {
	msgs []*discordgo.Message // новые первыми

	mu       sync.Mutex
	failures map[string]int // сколько раз подряд упасть на курсоре
	requests int
}

func (c *fakeChannel) ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, _ ...discordgo.RequestOption) ([]*discordgo.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++

	if c.failures[beforeID] > 0 {
		c.failures[beforeID]--
		return nil, errors.New("HTTP 502 Bad Gateway")
	}

	start := 0
	if beforeID != "" {
		start = slices.IndexFunc(c.msgs, func(m *discordgo.Message) bool { return m.ID == beforeID }) + 1
	}
	end := min(start+limit, len(c.msgs))
	return c.msgs[start:end], nil
}

func newCDN(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if filepath.Base(r.URL.Path) == "gone.png" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, "content of %s", r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newHistory строит канал: у каждого сообщения i вложения names[i].
func newHistory(cdn string, names ...[]string) *fakeChannel {
	c := &fakeChannel{failures: map[string]int{}}
	for i := len(names) - 1; i >= 0; i-- {
		msgID := fmt.Sprintf("%d", 1000+i)
		m := &discordgo.Message{ID: msgID, ChannelID: "777", Timestamp: time.Now()}
		for j, name := range names[i] {
			attID := fmt.Sprintf("%s%d", msgID, j)
			m.Attachments = append(m.Attachments, &discordgo.MessageAttachment{
				ID:       attID,
				URL:      fmt.Sprintf("%s/attachments/777/%s/%s", cdn, attID, name),
				Filename: name,
			})
		}
		c.msgs = append(c.msgs, m)
	}
	return c
}

type pipeline struct {
	dir   *disk.Dir
	store *memstor.Memstor
	mgr   *manager.Manager
	api   http.Handler
}

func newPipeline(t *testing.T, src history.Source) *pipeline {
	t.Helper()

	dir, err := disk.Open(filepath.Join(t.TempDir(), "outputs"))
	if err != nil {
		t.Fatalf("open dir: %v", err)
	}

	store := memstor.New(memstor.Config{MaxTotal: 100, TTL: time.Minute})
	t.Cleanup(store.Cancel)

	ldr := loader.New(loader.NewHTTPClient(config.Loader{Timeout: 5 * time.Second, AllowPrivate: true}))
	pager := history.New(src, config.History{PageSize: 2, MaxPageErrors: 3})
	mgr := manager.New(config.Manager{MaxActive: 3}, pager, ldr, dir, manager.WithRecorder(store))

	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &pipeline{
		dir:   dir,
		store: store,
		mgr:   mgr,
		api:   logger.HTTPLogging(log, api.New(store, "/api")),
	}
}

func (p *pipeline) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(p.dir.Root())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names
}

func (p *pipeline) getRun(t *testing.T, id string) (model.Run, int) {
	t.Helper()
	w := httptest.NewRecorder()
	p.api.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs/"+id, nil))

	var run model.Run
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &run); err != nil {
			t.Fatalf("decode run: %v", err)
		}
	}
	return run, w.Code
}

// TestPipeline прогоняет историю из нескольких страниц через все компоненты.
func TestPipeline(t *testing.T) {
	cdn := newCDN(t)
	src := newHistory(cdn.URL,
		nil,
		[]string{"img1.png", "img1.png"},
		[]string{"x.png"},
		[]string{"gone.png", "notes.txt"},
		nil,
	)
	p := newPipeline(t, src)

	run, err := p.mgr.Run(t.Context(), "777")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if run.Messages != 5 || run.Tasks != 3 || run.Attachments != 5 {
		t.Errorf("unexpected counters: %+v", run)
	}
	if run.Saved != 4 || run.Failed != 1 {
		t.Errorf("expected 4 saved and 1 failed, got %d/%d", run.Saved, run.Failed)
	}

	want := []string{"10010_img1.png", "10011_img1.png", "10020_x.png", "10031_notes.txt"}
	if got := p.files(t); !slices.Equal(got, want) {
		t.Errorf("files: expected %v, got %v", want, got)
	}

	data, err := os.ReadFile(filepath.Join(p.dir.Root(), "10020_x.png"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "content of /attachments/777/10020/x.png" {
		t.Errorf("unexpected content: %q", data)
	}

	stored, code := p.getRun(t, run.ID)
	if code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", code)
	}
	if stored.Status != model.RunFinished || stored.Saved != 4 {
		t.Errorf("unexpected stored run: %+v", stored)
	}
}

func TestPipeline_SecondRun(t *testing.T) {
	cdn := newCDN(t)
	src := newHistory(cdn.URL, []string{"a.png"}, []string{"b"})
	p := newPipeline(t, src)

	for range 2 {
		if _, err := p.mgr.Run(t.Context(), "777"); err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	// у "b" нет расширения, оно берётся из Content-Type ответа CDN
	want := []string{"10000_a (0).png", "10000_a.png", "10010_b (0).txt", "10010_b.txt"}
	if got := p.files(t); !slices.Equal(got, want) {
		t.Errorf("files: expected %v, got %v", want, got)
	}
}

func TestPipeline_PageRetry(t *testing.T) {
	cdn := newCDN(t)
	src := newHistory(cdn.URL, []string{"a.png"}, []string{"b.png"}, []string{"c.png"})
	// вторая страница начинается после сообщения 1001
	src.failures["1001"] = 2
	p := newPipeline(t, src)

	run, err := p.mgr.Run(t.Context(), "777")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.PageErrors != 2 {
		t.Errorf("expected 2 page errors, got %d", run.PageErrors)
	}
	if run.Messages != 3 || run.Saved != 3 {
		t.Errorf("unexpected counters: %+v", run)
	}
}

func TestPipeline_PageErrorsExhausted(t *testing.T) {
	cdn := newCDN(t)
	src := newHistory(cdn.URL, []string{"a.png"}, []string{"b.png"}, []string{"c.png"})
	src.failures["1001"] = 10
	p := newPipeline(t, src)

	run, err := p.mgr.Run(t.Context(), "777")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.PageErrors != 3 {
		t.Errorf("expected 3 page errors, got %d", run.PageErrors)
	}
	// первая страница уже скачана
	if run.Saved != 2 {
		t.Errorf("expected 2 saved, got %d", run.Saved)
	}
}

func TestPipeline_UnknownRun(t *testing.T) {
	p := newPipeline(t, newHistory(""))

	if _, code := p.getRun(t, "6f1c1f0e-8f7e-4a53-9b1f-3e0c5b1f2a10"); code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", code)
	}
}
