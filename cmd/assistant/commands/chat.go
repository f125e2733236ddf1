package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"parts-assistant/cmd/assistant/ui"
	"parts-assistant/internal/app"
	"parts-assistant/internal/assistant"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	chatQuestion       string
	chatConversationID string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the assistant from the terminal",
	Long: `Runs the assistant in-process. Without --question it starts an
interactive session; type /new to start a new conversation and exit to quit.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatQuestion, "question", "q", "", "single question to ask")
	chatCmd.Flags().StringVar(&chatConversationID, "conversation", "", "conversation id (default: random)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmdContext(cmd)

	spin := ui.NewSpinner("Indexing manual...")
	spin.Start()
	a, err := app.New(ctx, cfg, cliLogger(cfg))
	spin.Stop()
	if err != nil {
		return err
	}
	defer a.Close()

	conversationID := chatConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	if chatQuestion != "" {
		return ask(ctx, a.Assistant, conversationID, chatQuestion)
	}

	ui.Info("Parts assistant. Ask about piece availability or the manual (type 'exit' to quit).")
	ui.Info("Conversation %s", conversationID)

	prompt := color.New(color.FgCyan, color.Bold)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		prompt.Print("\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/new":
			conversationID = uuid.NewString()
			ui.Info("Conversation %s", conversationID)
			continue
		}

		if err := ask(ctx, a.Assistant, conversationID, input); err != nil {
			ui.Error("%v", err)
		}
	}
	return scanner.Err()
}

func ask(ctx context.Context, a *assistant.Assistant, conversationID, question string) error {
	spin := ui.NewSpinner("Thinking...")
	spin.Start()
	resp, err := a.Handle(ctx, assistant.Request{Prompt: question, ConversationID: conversationID})
	spin.Stop()

	if err != nil {
		var perr *assistant.ProcessingError
		if errors.As(err, &perr) {
			return errors.New(perr.UserMessage())
		}
		return err
	}

	fmt.Println(formatResponse(resp))
	return nil
}

func formatResponse(resp assistant.Response) string {
	switch resp.Outcome {
	case assistant.OutcomeManual:
		return resp.Answer
	case assistant.OutcomeMessage:
		return resp.Message
	}

	r := resp.Availability
	var sb strings.Builder
	fmt.Fprintf(&sb, "Data: %s\n", r.Date)
	if len(r.FoundPieces) > 0 {
		sb.WriteString("Peças encontradas:\n")
		for _, it := range r.FoundPieces {
			fmt.Fprintf(&sb, "  - %s %s (%s)\n", it.SAP, it.Description, it.Category)
		}
	}
	if len(r.UnmatchedPieces) > 0 {
		fmt.Fprintf(&sb, "Não encontradas: %s\n", strings.Join(r.UnmatchedPieces, ", "))
	}
	if len(r.CommonHours) == 0 {
		sb.WriteString("Nenhum horário em comum disponível.")
		return sb.String()
	}
	hours := make([]string, len(r.CommonHours))
	for i, h := range r.CommonHours {
		hours[i] = fmt.Sprintf("%02d:00", h)
	}
	fmt.Fprintf(&sb, "Horários disponíveis: %s", strings.Join(hours, ", "))
	return sb.String()
}
