package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
)

var chatWidgetID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to a widget from the terminal",
	Long: `Starts an interactive session against one widget using the configured
storage, so the transcript survives restarts like it does for HTTP clients.

Commands: /clear empties the transcript, /quit exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		a, err := buildApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		return runChat(cmd, a, chatWidgetID, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatWidgetID, "widget", "cli", "widget id, also namespaces the stored transcript")
}

func runChat(cmd *cobra.Command, a *app, id string, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	w := a.registry.CreateWithID(id, nil)
	w.Open()

	title := w.Options().Title
	for _, m := range w.Messages() {
		printMessage(out, title, m.Text, m.IsUser)
	}

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
		case "/quit", "/exit":
			return nil
		case "/clear":
			w.Clear(ctx)
			printMessage(out, title, w.Messages()[0].Text, false)
			continue
		}

		reply, ok, err := w.SendAndWait(ctx, line)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "(still answering the previous message)")
			continue
		}
		printMessage(out, title, reply, false)
	}
}

func printMessage(out io.Writer, title, text string, isUser bool) {
	who := title
	if isUser {
		who = "you"
	}
	fmt.Fprintf(out, "[%s] %s\n", who, text)
}
