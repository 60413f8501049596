// Package chatcmder provides the chat command for interactive sessions
// against a running anymind API server.
package chatcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/pkg/cliui"
	"github.com/yashdodwani/anymind/pkg/config"
	"github.com/yashdodwani/anymind/pkg/logger"
	"github.com/yashdodwani/anymind/pkg/sse"
	"github.com/yashdodwani/anymind/pkg/utils"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	apiTarget string
	agentID   string
	chatID    string
	wallet    string
	debug     bool

	logger *zap.Logger
}

// sendMessageRequest mirrors the API server's message payload.
type sendMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// streamFrame is a single SSE data payload from the streaming endpoint.
type streamFrame struct {
	Content string `json:"content,omitempty"`
	Done    bool   `json:"done,omitempty"`
	Error   string `json:"error,omitempty"`
}

const chatLongDesc string = `Start an interactive chat session against a running anymind server.

Messages are sent to the streaming endpoint of the given agent and chat, and
assistant tokens are printed as they arrive. Conversation history, memory
retrieval, and persistence all happen server-side, so re-running the command
against the same chat resumes where it left off.

The wallet address identifies the owner of the agent and chat. The server
rejects requests without one.

Examples:
  anymind chat --agent a1b2c3 --chat d4e5f6 --wallet 0xabc123
  anymind chat --agent a1b2c3 --chat d4e5f6 --wallet 0xabc123 --api-target http://localhost:8000`

const chatShortDesc string = "Interactive chat session against a running anymind server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("api-target") {
				cmder.apiTarget = cfg.Client.APITarget
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			if cmder.agentID == "" || cmder.chatID == "" {
				return fmt.Errorf("both --agent and --chat are required")
			}
			if cmder.wallet == "" {
				return fmt.Errorf("--wallet is required")
			}

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().StringVarP(&cmder.apiTarget, "api-target", "t", defaults.Client.APITarget, "Anymind API server URL")
	cmd.Flags().StringVarP(&cmder.agentID, "agent", "a", "", "Agent ID to chat with")
	cmd.Flags().StringVarP(&cmder.chatID, "chat", "c", "", "Chat ID to send messages to")
	cmd.Flags().StringVarP(&cmder.wallet, "wallet", "w", "", "Wallet address identifying the owner")

	return cmd
}

func (c *chatCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	fmt.Println()
	fmt.Printf("  %s %s\n",
		cliui.KeyStyle.Render("Agent:"),
		cliui.NameStyle.Render(utils.Truncate(c.agentID, 16)),
	)
	fmt.Printf("  %s %s\n\n",
		cliui.KeyStyle.Render("Chat:"),
		cliui.NameStyle.Render(utils.Truncate(c.chatID, 16)),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print(userPrompt)
		if !scanner.Scan() {
			// EOF or error
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/exit" {
			break
		}

		if err := c.sendAndStream(input); err != nil {
			fmt.Fprintf(os.Stderr, "  %s %v\n", cliui.FailMark, err)
			continue
		}

		fmt.Println()
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Println()
	return nil
}

// sendAndStream posts the message to the streaming endpoint and prints
// assistant tokens as they arrive.
func (c *chatCommander) sendAndStream(content string) error {
	body, err := json.Marshal(sendMessageRequest{
		Role:    "user",
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/agents/%s/chats/%s/messages/stream",
		c.apiTarget, c.agentID, c.chatID)

	c.logger.Debug("sending chat message",
		zap.String("url", url),
		zap.Int("content_length", len(content)),
	)

	httpReq, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Wallet-Address", c.wallet)

	client := &http.Client{
		// LLM responses can be slow
		Timeout: 5 * time.Minute,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(respBody))
	}

	fmt.Print(assistantPrompt)

	reader := sse.NewReader(resp.Body)
	for {
		event, err := reader.Next()
		if err != nil {
			return fmt.Errorf("reading stream: %w", err)
		}
		if event == nil {
			return nil
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(event.Data), &frame); err != nil {
			c.logger.Debug("failed to parse stream frame",
				zap.Error(err),
				zap.String("data", event.Data),
			)
			continue
		}

		if frame.Error != "" {
			return fmt.Errorf("%s", frame.Error)
		}
		if frame.Content != "" {
			fmt.Print(frame.Content)
		}
		if frame.Done {
			return nil
		}
	}
}
