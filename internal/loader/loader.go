package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"attachget/internal/config"
	"attachget/internal/protect"
)

const userAgent = "attachget (https://github.com/bwmarrin/discordgo, v1)"

// FetchError: ошибка получения вложения: невалидный URL, сбой транспорта
// или неожиданный статус ответа (Status != 0).
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Body: тело ответа и его MIME-тип без параметров.
type Body struct {
	io.ReadCloser
	ContentType string
}

type Loader struct {
	client *http.Client
}

func New(client *http.Client) *Loader {
	return &Loader{client: client}
}

// Fetch делает один GET без повторов. Закрыть Body обязан вызывающий.
func (ldr *Loader) Fetch(ctx context.Context, uri string) (Body, error) {
	log := slog.With("op", "fetch", "url", uri)

	u, err := url.ParseRequestURI(uri)
	if err != nil {
		log.Debug("invalid url", "error", err)
		return Body{}, &FetchError{URL: uri, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Body{}, &FetchError{URL: uri, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := ldr.client.Do(req)
	if err != nil {
		log.Debug("request failed", "error", err)
		return Body{}, &FetchError{URL: uri, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		log.Debug("unexpected status", "status", resp.StatusCode)
		return Body{}, &FetchError{URL: uri, Status: resp.StatusCode}
	}

	return Body{
		ReadCloser:  resp.Body,
		ContentType: mediaType(resp.Header.Get("Content-Type")),
	}, nil
}

// NewHTTPClient создаёт клиент с разумными таймаутами для загрузки файлов
// и, если не разрешено обратное, с защитой от SSRF.
func NewHTTPClient(cfg config.Loader) *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           protect.DialContext(dialer, net.DefaultResolver),
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	if cfg.AllowPrivate {
		transport.DialContext = dialer.DialContext
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// mediaType отбрасывает параметры: "text/plain; charset=utf-8" -> "text/plain".
func mediaType(contentType string) string {
	if end := strings.IndexByte(contentType, ';'); end != -1 {
		contentType = contentType[:end]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}
