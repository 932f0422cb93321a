package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/nalgeon/be"

	"attachget/internal/config"
	"attachget/internal/model"
)

type fakeResponder struct {
	respondErr error
	editErr    error

	mu        sync.Mutex
	responses []*discordgo.InteractionResponse
	edits     []string
}

func (r *fakeResponder) InteractionRespond(i *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.respondErr != nil {
		return r.respondErr
	}
	r.responses = append(r.responses, resp)
	return nil
}

func (r *fakeResponder) InteractionResponseEdit(i *discordgo.Interaction, edit *discordgo.WebhookEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.editErr != nil {
		return nil, r.editErr
	}
	r.edits = append(r.edits, *edit.Content)
	return &discordgo.Message{Content: *edit.Content}, nil
}

type fakeRunner struct {
	run      model.Run
	err      error
	channels []string
}

func (r *fakeRunner) Run(ctx context.Context, channelID string) (model.Run, error) {
	r.channels = append(r.channels, channelID)
	run := r.run
	run.ChannelID = channelID
	return run, r.err
}

func newInteraction(name string, opts ...*discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ID:        "interaction",
		Type:      discordgo.InteractionApplicationCommand,
		ChannelID: "here",
		Member:    &discordgo.Member{User: &discordgo.User{Username: "kitty"}},
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    name,
			Options: opts,
		},
	}}
}

func channelOpt(id string) *discordgo.ApplicationCommandInteractionDataOption {
	return &discordgo.ApplicationCommandInteractionDataOption{
		Name:  channelOption,
		Type:  discordgo.ApplicationCommandOptionChannel,
		Value: id,
	}
}

func TestHandleDownload(t *testing.T) {
	runner := &fakeRunner{run: model.Run{Attachments: 3, Saved: 2, Failed: 1}}
	b := New(nil, runner, config.Bot{})
	resp := &fakeResponder{}
	i := newInteraction(commandName)

	err := b.handleDownload(t.Context(), resp, i.Interaction, i.ApplicationCommandData())
	be.Err(t, err, nil)

	be.Equal(t, runner.channels, []string{"here"})
	be.Equal(t, len(resp.responses), 1)
	be.Equal(t, resp.responses[0].Data.Content, msgFetching)
	be.Equal(t, resp.responses[0].Data.Flags, discordgo.MessageFlagsEphemeral)
	be.Equal(t, resp.edits, []string{"Finished.\nSaved 2 of 3 attachments, 1 failed."})
}

func TestHandleDownload_ChannelOption(t *testing.T) {
	runner := &fakeRunner{}
	b := New(nil, runner, config.Bot{})
	i := newInteraction(commandName, channelOpt("other"))

	err := b.handleDownload(t.Context(), &fakeResponder{}, i.Interaction, i.ApplicationCommandData())
	be.Err(t, err, nil)
	be.Equal(t, runner.channels, []string{"other"})
}

func TestHandleDownload_RespondFailed(t *testing.T) {
	runner := &fakeRunner{}
	b := New(nil, runner, config.Bot{})
	resp := &fakeResponder{respondErr: errors.New("unknown interaction")}
	i := newInteraction(commandName)

	err := b.handleDownload(t.Context(), resp, i.Interaction, i.ApplicationCommandData())
	be.Err(t, err, "unknown interaction")
	be.Equal(t, len(runner.channels), 0)
}

func TestHandleDownload_EditFailed(t *testing.T) {
	runner := &fakeRunner{run: model.Run{Attachments: 1, Saved: 1}}
	b := New(nil, runner, config.Bot{})
	resp := &fakeResponder{editErr: errors.New("invalid webhook token")}
	i := newInteraction(commandName)

	err := b.handleDownload(t.Context(), resp, i.Interaction, i.ApplicationCommandData())
	be.Err(t, err, "invalid webhook token")
	be.Equal(t, runner.channels, []string{"here"})
}

func TestOnInteraction_Ignored(t *testing.T) {
	runner := &fakeRunner{}
	b := New(nil, runner, config.Bot{})
	resp := &fakeResponder{}

	other := newInteraction("purge")
	ping := newInteraction(commandName)
	ping.Type = discordgo.InteractionPing

	b.onInteraction(t.Context(), resp, other)
	b.onInteraction(t.Context(), resp, ping)

	be.Equal(t, len(runner.channels), 0)
	be.Equal(t, len(resp.responses), 0)
}

func TestOnInteraction_AfterStop(t *testing.T) {
	runner := &fakeRunner{}
	b := New(nil, runner, config.Bot{})
	b.stopped = true

	b.onInteraction(t.Context(), &fakeResponder{}, newInteraction(commandName))
	be.Equal(t, len(runner.channels), 0)
}

func TestFinishedMessage(t *testing.T) {
	tests := []struct {
		name string
		run  model.Run
		err  error
		want string
	}{
		{
			name: "empty channel",
			want: "Finished.\nSaved 0 of 0 attachments, 0 failed.",
		},
		{
			name: "page errors",
			run:  model.Run{Attachments: 4, Saved: 4, PageErrors: 2},
			want: "Finished.\nSaved 4 of 4 attachments, 0 failed.\nHistory page errors: 2.",
		},
		{
			name: "cancelled",
			run:  model.Run{Attachments: 1, Saved: 1},
			err:  context.Canceled,
			want: "Finished.\nSaved 1 of 1 attachments, 0 failed.\nStopped early: context canceled.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := finishedMessage(tt.run, tt.err)
			be.Equal(t, got, tt.want)
			be.True(t, strings.HasPrefix(got, msgFinished))
		})
	}
}

func TestCommand(t *testing.T) {
	cmd := command()
	be.Equal(t, cmd.Name, "download")
	be.Equal(t, len(cmd.Options), 1)
	be.Equal(t, cmd.Options[0].Name, channelOption)
	be.Equal(t, cmd.Options[0].Required, false)
}
