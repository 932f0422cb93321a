package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"attachget/internal/bot"
	"attachget/internal/config"
	"attachget/internal/disk"
	"attachget/internal/history"
	"attachget/internal/loader"
	"attachget/internal/manager"
	"attachget/internal/model"
	"attachget/internal/observer"
)

var (
	channelID    = flag.String("c", "", "Channel ID to download from.")
	channelsFile = flag.String("f", "", "Get channel IDs from file instead of command line, use '-' for stdin.")
	token        = flag.String("t", "", "Bot token (default from "+config.TokenEnv+").")
	outputDir    = flag.String("o", "", "Output directory (default from OUTPUT_DIR).")
	statusFile   = flag.String("s", "", "Save status to file, use '-' for stdout.")
	verbose      = flag.Bool("v", false, "Enable debug mode and output status to stderr.")
	nothing      = flag.Bool("n", false, "Don't download anything, print target paths only.")
)

func main() {
	flag.Parse()
	godotenv.Load()

	channels := flag.Args()
	if *channelID != "" {
		channels = append([]string{*channelID}, channels...)
	}
	if *channelsFile != "" {
		var err error
		channels, err = loadChannelsFromFile(*channelsFile)
		if err != nil {
			log.Fatal(err)
		}
	}

	if len(channels) == 0 {
		fmt.Fprintln(os.Stderr, "channel ID required")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load([]string{*token})
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *outputDir != "" {
		cfg.Manager.OutputDir = *outputDir
	}

	setupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	session, err := bot.NewSession(cfg.Bot.Token)
	if err != nil {
		log.Fatal(err)
	}
	pager := history.New(session, cfg.History)

	dir, err := disk.Open(cfg.Manager.OutputDir)
	if err != nil {
		log.Fatalf("open output dir failed: %v", err)
	}

	var status any
	if *nothing {
		status, err = checkOnly(ctx, pager, dir, channels)
	} else {
		status, err = download(ctx, cfg, pager, dir, channels)
	}

	if err != nil {
		log.Println(err)
	}

	if *verbose || *statusFile != "" {
		buf, _ := json.MarshalIndent(status, "", "    ")
		if *verbose {
			os.Stderr.Write(buf)
		}
		if *statusFile == "-" {
			os.Stdout.Write(buf)
		} else if *statusFile != "" {
			if err := os.WriteFile(*statusFile, buf, 0666); err != nil {
				log.Fatalf("write status failed: %v", err)
			}
		}
	}

	if err != nil {
		os.Exit(1)
	}
}

// checkOnly обходит историю и печатает пути, под которыми файлы были бы
// сохранены сейчас. Ничего не скачивает.
func checkOnly(ctx context.Context, pager manager.Pager, dir *disk.Dir, channels []string) ([]model.File, error) {
	var files []model.File
	for _, ch := range channels {
		for msg, err := range pager.Messages(ctx, ch) {
			if err != nil {
				if ctx.Err() != nil {
					return files, err
				}
				slog.Warn("fetch messages failed", "channelID", ch, "error", err)
				continue
			}
			for _, att := range msg.Attachments {
				file := model.File{
					AttachmentID: att.ID,
					MessageID:    att.MessageID,
					URL:          att.URL,
					OrigName:     att.Filename,
					Name:         disk.WithExt(disk.FileName(att.ID, att.Filename), att.ContentType),
					Size:         int64(att.Size),
				}
				path, err := dir.UniquePath(file.Name)
				if err != nil {
					file.Error = err.Error()
				} else {
					file.Path = path
				}
				fmt.Printf("%s\t%s\n", att.URL, path)
				files = append(files, file)
			}
		}
	}
	return files, nil
}

func download(ctx context.Context, cfg config.Config, pager manager.Pager, dir *disk.Dir, channels []string) ([]model.Run, error) {
	ldr := loader.New(loader.NewHTTPClient(cfg.Loader))
	mgr := manager.New(cfg.Manager, pager, ldr, dir)

	bar := observer.NewProgressBar(os.Stderr)
	mgr.AddObserver(bar)
	defer bar.Finish()

	var runs []model.Run
	for _, ch := range channels {
		run, err := mgr.Run(ctx, ch)
		runs = append(runs, run)
		if err != nil {
			return runs, fmt.Errorf("download channel %s: %w", ch, err)
		}
	}

	saved, failed, bytes := bar.Counts()
	slog.Info("done", "saved", saved, "failed", failed, "bytes", bytes)
	return runs, nil
}

func setupLogger() {
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(
		os.Stderr,
		&slog.HandlerOptions{Level: level},
	)))
	log.Printf("logging level %v", level)
}

func loadChannelsFromFile(fileName string) ([]string, error) {
	input := os.Stdin
	if fileName != "-" {
		var err error
		input, err = os.Open(fileName)
		if err != nil {
			return nil, err
		}
		defer input.Close()
	}

	sc := bufio.NewScanner(input)
	var channels []string

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		channels = append(channels, line)
	}

	return channels, sc.Err()
}
