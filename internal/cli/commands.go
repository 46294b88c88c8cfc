// Package cli implements the caffbot command-line chat client.
package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AliZeynalov/portfolio-chatbot/internal/client"
	"github.com/AliZeynalov/portfolio-chatbot/internal/errs"
	"github.com/AliZeynalov/portfolio-chatbot/internal/history"
	"github.com/AliZeynalov/portfolio-chatbot/internal/models"
	"github.com/AliZeynalov/portfolio-chatbot/internal/session"
)

const version = "0.1.0"

type app struct {
	configPath string
}

// NewRootCmd builds the caffbot command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:     "caffbot",
		Short:   "Chat with the portfolio assistant from the terminal",
		Version: version,
		Example: `  # Ask one question
  $ caffbot send "What projects are on the site?"

  # Start an interactive chat
  $ caffbot chat

  # Find earlier answers
  $ caffbot history --search kubernetes`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to config file (default ~/.caffbot/config.toml)")

	root.AddCommand(
		a.sendCmd(),
		a.chatCmd(),
		a.historyCmd(),
		a.clearCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) config() (Config, error) {
	path := a.configPath
	if path == "" {
		p, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}
	return LoadConfig(path)
}

func (a *app) open(cmd *cobra.Command) (*session.Session, func() error, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, nil, err
	}
	s, closeFn, err := cfg.OpenSession(cmd.Context())
	if err != nil {
		return nil, nil, err
	}
	if s.Recovered() {
		fmt.Fprintln(cmd.ErrOrStderr(), "Chat history was unreadable and has been reset.")
	}
	return s, closeFn, nil
}

func (a *app) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			reply, err := s.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Content)
			return nil
		},
	}
}

func (a *app) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "start an interactive chat",
		Long: `Start an interactive chat. Each line is sent as one message.

Commands:
  /clear   clear the conversation
  /exit    leave the chat`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			if msgs := s.Messages(); len(msgs) > 0 {
				fmt.Fprintf(out, "CaffBot: %s\n", msgs[len(msgs)-1].Content)
			}

			return repl(cmd, s, cmd.InOrStdin(), out)
		},
	}
}

func repl(cmd *cobra.Command, s *session.Session, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/clear":
			if err := s.Clear(ctx); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
				continue
			}
			fmt.Fprintf(out, "CaffBot: %s\n", session.Greeting)
			continue
		}

		reply, err := s.Send(ctx, line)
		if err != nil {
			fmt.Fprintf(out, "! %v\n", userError(err))
			continue
		}
		fmt.Fprintf(out, "CaffBot: %s\n", reply.Content)
	}
}

// userError swaps a transport failure for the text the widget would show.
func userError(err error) error {
	var te *errs.TransportError
	if errors.As(err, &te) {
		return errors.New(client.Message(err))
	}
	return err
}

func (a *app) historyCmd() *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			entries := s.Search(search)
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No messages found.")
				return nil
			}
			for _, e := range entries {
				printEntry(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only show messages containing this text")
	return cmd
}

func printEntry(w io.Writer, e history.Entry) {
	who := "You"
	if e.Role != models.RoleUser {
		who = "CaffBot"
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", e.CreatedAt.Local().Format("2006-01-02 15:04"), who, e.Content)
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "clear the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			err = s.Clear(cmd.Context())
			if errors.Is(err, session.ErrNothingToClear) {
				fmt.Fprintln(cmd.OutOrStdout(), "No user messages to clear.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Chat history cleared.")
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			data, err := cfg.Encode()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
