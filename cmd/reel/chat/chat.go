// Package chatcmder provides the chat command, an interactive client for a
// running reel server.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/papercomputeco/reel/pkg/cliui"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/dotdir"
	"github.com/papercomputeco/reel/pkg/logger"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("reel> ")
)

var chatFlags = config.FlagSet{
	config.FlagAPITarget: {
		Name:        "api-target",
		Shorthand:   "a",
		ViperKey:    "client.api_target",
		Description: "Reel API server URL",
	},
	config.FlagToken: {
		Name:        "token",
		Shorthand:   "t",
		ViperKey:    "client.token",
		Description: "Bearer token for the API server",
	},
}

type chatCommander struct {
	apiTarget string
	token     string
	persona   string
	title     string
	fresh     bool
	markdown  bool
	configDir string
	debug     bool

	in     io.Reader
	out    io.Writer
	client *client
	logger *zap.Logger
}

const chatLongDesc string = `Start an interactive chat session with a running reel server.

The conversation is remembered in .reel/session.json and resumed on the
next run. Use --new (or /new inside the session) to start a fresh one.
Replies stream as they are generated; on a terminal they can instead be
rendered as markdown once complete.

Examples:
  reel chat
  reel chat --new --persona programming-expert --title "Go questions"
  reel chat --api-target http://localhost:8081 --token secret`

const chatShortDesc string = "Interactive chat with a reel server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, chatFlags, []string{config.FlagAPITarget, config.FlagToken})

			cfg, err := config.FromViper(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.apiTarget = cfg.Client.APITarget
			cmder.token = cfg.Client.Token
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, chatFlags, config.FlagAPITarget, &cmder.apiTarget)
	config.AddStringFlag(cmd, chatFlags, config.FlagToken, &cmder.token)
	cmd.Flags().StringVarP(&cmder.persona, "persona", "p", "", "Persona for a new conversation")
	cmd.Flags().StringVar(&cmder.title, "title", "", "Title for a new conversation")
	cmd.Flags().BoolVarP(&cmder.fresh, "new", "n", false, "Start a new conversation instead of resuming")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render complete replies as markdown on a terminal")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	c.client = newClient(c.apiTarget, c.token)

	conv, err := c.resume(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Persona:"),
		cliui.NameStyle.Render(conv.Persona),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /new starts over, /exit or Ctrl+D quits."))

	render := c.markdown && isTerminal(c.out)
	scanner := bufio.NewScanner(c.in)

	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			fmt.Fprintln(c.out)
			return nil
		case "/new":
			c.fresh = true
			if conv, err = c.resume(ctx); err != nil {
				return err
			}
			continue
		}

		start := time.Now()
		err = c.exchange(ctx, conv.ID, input, render)
		switch {
		case err == nil:
			fmt.Fprintf(c.out, "  %s\n\n", cliui.Outcome(nil, time.Since(start)))
		case errors.Is(err, errConversationGone):
			fmt.Fprintf(c.out, "\n  %s conversation is gone, starting a new one\n", cliui.FailMark)
			c.fresh = true
			if conv, err = c.resume(ctx); err != nil {
				return err
			}
		default:
			fmt.Fprintf(c.out, "\n  %s %v\n\n", cliui.Outcome(err, time.Since(start)), err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// resume loads the saved conversation, or creates one when there is none,
// it is gone, or a fresh start was asked for.
func (c *chatCommander) resume(ctx context.Context) (*storage.Conversation, error) {
	sessions := dotdir.NewManager()

	if !c.fresh {
		state, err := sessions.LoadSession(c.configDir)
		if err != nil {
			return nil, fmt.Errorf("loading session: %w", err)
		}
		if state != nil {
			conv, err := c.client.getConversation(ctx, state.ConversationID)
			switch {
			case err == nil:
				fmt.Fprintf(c.out, "\n  %s Resuming %s %s\n",
					cliui.SuccessMark,
					cliui.NameStyle.Render(conv.Title),
					cliui.DimStyle.Render(fmt.Sprintf("(%d turns)", conv.TurnCount)),
				)
				return conv, nil
			case errors.Is(err, errConversationGone):
				c.logger.Debug("saved conversation is gone", zap.String("conversation_id", state.ConversationID))
			default:
				return nil, err
			}
		}
	}

	fmt.Fprintln(c.out)
	var conv *storage.Conversation
	err := cliui.Step(c.out, "Creating conversation", func() error {
		var err error
		conv, err = c.client.createConversation(ctx, c.title, c.persona)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
	c.fresh = false

	if err := sessions.SaveSession(&dotdir.SessionState{
		ConversationID: conv.ID,
		Persona:        conv.Persona,
		Title:          conv.Title,
	}, c.configDir); err != nil {
		return nil, err
	}

	fmt.Fprintf(c.out, "  %s %s\n",
		cliui.KeyStyle.Render("Conversation:"),
		cliui.HashStyle.Render(utils.Truncate(conv.ID, 8)),
	)
	return conv, nil
}

func (c *chatCommander) exchange(ctx context.Context, conversationID, input string, render bool) error {
	c.logger.Debug("sending message",
		zap.String("api_target", c.apiTarget),
		zap.String("conversation_id", conversationID),
	)

	fmt.Fprint(c.out, assistantPrompt)

	onChunk := func(s string) { fmt.Fprint(c.out, s) }
	if render {
		onChunk = func(string) {}
	}

	done, err := c.client.stream(ctx, conversationID, input, onChunk)
	if err != nil {
		return err
	}

	if render {
		rendered, err := cliui.RenderMarkdown(done.FullContent)
		if err != nil {
			c.logger.Debug("markdown rendering failed", zap.Error(err))
		}
		fmt.Fprint(c.out, "\n"+rendered)
		return nil
	}

	fmt.Fprint(c.out, "\n")
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
