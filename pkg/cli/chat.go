package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/metroplan-lab/civitas/pkg/cli/config"
	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/service/embedding"
	"github.com/metroplan-lab/civitas/pkg/usecase"
	"github.com/metroplan-lab/civitas/pkg/utils/logging"
)

func cmdChat() *cli.Command {
	var userID string
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var memoryCfg config.Memory

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user",
			Usage:       "User ID to chat as (required)",
			Required:    true,
			Sources:     cli.EnvVars("CIVITAS_CHAT_USER"),
			Destination: &userID,
		},
	}

	// Add shared config flags
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, memoryCfg.Flags()...)

	return &cli.Command{
		Name:    "chat",
		Aliases: []string{"c"},
		Usage:   "Interactive chat session in the terminal",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			registry, err := appCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load application configuration")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			llmClient, err := geminiCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure Gemini client")
			}
			if llmClient == nil {
				return goerr.New("gemini-project is required for interactive chat")
			}

			var embedder interfaces.Embedder = embedding.New(llmClient, repoCfg.Dimension(),
				embedding.WithTimeout(memoryCfg.EmbedTimeout()))

			uc := usecase.New(repo, embedder,
				usecase.WithUsers(registry),
				usecase.WithLLM(llmClient),
				usecase.WithContextBuilder(memoryCfg.Builder(repo.Conversation(), embedder)),
			)

			return runChatLoop(ctx, uc, types.UserID(userID))
		},
	}
}

// runChatLoop reads queries from stdin and prints responses until EOF or
// /quit. Slash commands manage sessions.
func runChatLoop(ctx context.Context, uc *usecase.UseCases, userID types.UserID) error {
	prompt := color.New(color.FgCyan, color.Bold)
	assistant := color.New(color.FgGreen)
	system := color.New(color.FgYellow)
	errColor := color.New(color.FgRed)

	system.Println("Civitas urban planning assistant. Type /help for commands.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		prompt.Printf("%s> ", userID)
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := runChatCommand(ctx, uc, userID, line, system, errColor)
			if err != nil {
				errColor.Printf("error: %v\n", err)
			}
			if quit {
				break
			}
			continue
		}

		out, err := uc.Chat(ctx, &usecase.ChatInput{UserID: userID, Message: line})
		if err != nil {
			errColor.Printf("error: %v\n", err)
			continue
		}
		if out.Degraded {
			system.Println("(memory retrieval unavailable for this turn)")
		}
		assistant.Println(out.Response)
	}

	return scanner.Err()
}

func runChatCommand(ctx context.Context, uc *usecase.UseCases, userID types.UserID, line string, system, errColor *color.Color) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		system.Println("/new                start a new conversation")
		system.Println("/sessions           list your sessions")
		system.Println("/load <session-id>  continue an earlier session")
		system.Println("/history            show your full history")
		system.Println("/quit               exit")
		return false, nil

	case "/new":
		sessionID, err := uc.NewConversation(ctx, userID)
		if err != nil {
			return false, err
		}
		system.Printf("started new session %s\n", sessionID)
		return false, nil

	case "/sessions":
		summaries, err := uc.ListSessions(ctx, userID)
		if err != nil {
			return false, err
		}
		if len(summaries) == 0 {
			system.Println("no sessions yet")
			return false, nil
		}
		for _, s := range summaries {
			system.Printf("%s  %d messages  %s  %q\n",
				s.SessionID, s.MessageCount,
				s.LastTimestamp.Format("2006-01-02 15:04"),
				s.FirstMessage)
		}
		return false, nil

	case "/load":
		if len(fields) < 2 {
			return false, goerr.New("usage: /load <session-id>")
		}
		records, err := uc.LoadSession(ctx, userID, types.SessionID(fields[1]))
		if err != nil {
			return false, err
		}
		system.Printf("continuing session %s (%d messages)\n", fields[1], len(records))
		for _, rec := range records {
			fmt.Printf("[USER] %s\n[ASSISTANT] %s\n", rec.UserQuery, rec.AssistantResponse)
		}
		return false, nil

	case "/history":
		records, err := uc.UserHistory(ctx, userID)
		if err != nil {
			return false, err
		}
		if len(records) == 0 {
			system.Println("no history yet")
			return false, nil
		}
		var lastSession types.SessionID
		for _, rec := range records {
			if rec.SessionID != lastSession {
				system.Printf("[SYSTEM] Session: %s\n", rec.SessionID)
				lastSession = rec.SessionID
			}
			fmt.Printf("[USER] %s\n[ASSISTANT] %s\n", rec.UserQuery, rec.AssistantResponse)
		}
		return false, nil

	default:
		return false, goerr.New("unknown command", goerr.V("command", fields[0]))
	}
}
