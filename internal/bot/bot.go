package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"attachget/internal/config"
	"attachget/internal/model"
)

const (
	commandName   = "download"
	channelOption = "channel"

	msgFetching = "Fetching..."
	msgFinished = "Finished."
)

var ErrStopped = errors.New("bot is stopped")

type Runner interface {
	Run(ctx context.Context, channelID string) (model.Run, error)
}

// Responder: часть discordgo.Session, через которую отвечаем на команду.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// NewSession создаёт сессию с интентами, достаточными для чтения вложений.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
	return s, nil
}

type Bot struct {
	session *discordgo.Session
	runner  Runner
	cfg     config.Bot

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

func New(session *discordgo.Session, runner Runner, cfg config.Bot) *Bot {
	return &Bot{
		session: session,
		runner:  runner,
		cfg:     cfg,
	}
}

// Start подключается к шлюзу и регистрирует команду. Команды выполняются
// с ctx: его отмена прерывает обход истории у запущенных команд.
func (b *Bot) Start(ctx context.Context) error {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Logged in as: "+r.User.String(), "op", "ready")
	})
	b.session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.onInteraction(ctx, s, i)
	})

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.cfg.GuildID, command()); err != nil {
		return fmt.Errorf("register command %s: %w", commandName, err)
	}

	slog.Info("command registered", "op", "start", "command", commandName, "guildID", b.cfg.GuildID)
	return nil
}

// Stop дожидается выполняющихся команд и закрывает сессию.
func (b *Bot) Stop() error {
	b.mu.Lock()
	b.stopped = true
	b.mu.Unlock()

	b.wg.Wait()
	return b.session.Close()
}

var channelTypes = []discordgo.ChannelType{
	discordgo.ChannelTypeGuildText,
	discordgo.ChannelTypeGuildNews,
	discordgo.ChannelTypeGuildPublicThread,
	discordgo.ChannelTypeGuildPrivateThread,
}

func command() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        commandName,
		Description: "Download every attachment of a channel",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         channelOption,
				Description:  "Channel to download from (defaults to this one)",
				Required:     false,
				ChannelTypes: channelTypes,
			},
		},
	}
}

func (b *Bot) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrStopped
	}
	b.wg.Add(1)
	return nil
}

func (b *Bot) onInteraction(ctx context.Context, r Responder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	if data.Name != commandName {
		return
	}

	log := slog.With("op", "command", "command", data.Name, "interactionID", i.ID, "user", userName(i.Interaction))

	if err := b.acquire(); err != nil {
		log.Warn("command rejected", "error", err)
		return
	}
	defer b.wg.Done()

	if err := b.handleDownload(ctx, r, i.Interaction, data); err != nil {
		log.Error("command failed", "error", err)
		return
	}
	log.Info("command done")
}

// handleDownload отвечает "Fetching...", выполняет запуск и заменяет ответ
// итогом. Ошибка отправки или правки ответа возвращается; уже сохранённые
// файлы остаются на диске.
func (b *Bot) handleDownload(ctx context.Context, r Responder, i *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) error {
	err := r.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msgFetching,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}

	channelID := targetChannel(i, data)
	run, runErr := b.runner.Run(ctx, channelID)

	content := finishedMessage(run, runErr)
	if _, err := r.InteractionResponseEdit(i, &discordgo.WebhookEdit{Content: &content}); err != nil {
		return fmt.Errorf("edit response: %w", err)
	}
	return nil
}

// targetChannel возвращает канал из опции команды или канал, где её вызвали.
func targetChannel(i *discordgo.Interaction, data discordgo.ApplicationCommandInteractionData) string {
	for _, opt := range data.Options {
		if opt.Name == channelOption && opt.Type == discordgo.ApplicationCommandOptionChannel {
			if ch := opt.ChannelValue(nil); ch != nil && ch.ID != "" {
				return ch.ID
			}
		}
	}
	return i.ChannelID
}

func finishedMessage(run model.Run, err error) string {
	var sb strings.Builder
	sb.WriteString(msgFinished)
	fmt.Fprintf(&sb, "\nSaved %d of %d attachments, %d failed.", run.Saved, run.Attachments, run.Failed)
	if run.PageErrors > 0 {
		fmt.Fprintf(&sb, "\nHistory page errors: %d.", run.PageErrors)
	}
	if err != nil {
		fmt.Fprintf(&sb, "\nStopped early: %v.", err)
	}
	return sb.String()
}

func userName(i *discordgo.Interaction) string {
	switch {
	case i.Member != nil && i.Member.User != nil:
		return i.Member.User.Username
	case i.User != nil:
		return i.User.Username
	}
	return ""
}
