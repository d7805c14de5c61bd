// ABOUTME: Admin CLI for bot-gateway: register, inspect and manage bots
// ABOUTME: Talks to the HTTP API with an owner session token from the environment

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	gatewayURL string
	sessionTok string
)

// apiError mirrors the gateway's error envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// call POSTs one operation and decodes the result envelope.
func call(op string, body any, result any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(http.MethodPost, gatewayURL+"/api/bot/v1/"+op, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if sessionTok != "" {
		req.Header.Set("Authorization", "Bearer "+sessionTok)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("calling gateway: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK     bool            `json:"ok"`
		Result json.RawMessage `json:"result"`
		Error  *apiError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !envelope.OK {
		if envelope.Error != nil {
			return envelope.Error
		}
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

type botInfo struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	IsPublic    bool   `json:"is_public"`
	TotalUsers  int64  `json:"total_users"`
	CreatedAt   string `json:"created_at"`
}

var rootCmd = &cobra.Command{
	Use:   "botctl",
	Short: "Manage bots on a bot-gateway server",
	Long: `botctl manages bots registered on a bot-gateway server.

Authentication uses an owner session token (a JWT issued by the
identity service) taken from the BOTGW_SESSION environment variable.`,
	Example: `  # Register a public bot
  botctl register weather_helper_bot --public --description "Weather updates"

  # List your bots
  botctl list

  # Rotate a leaked token
  botctl rotate bot_1234`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		gatewayURL = os.Getenv("BOTGW_URL")
		if gatewayURL == "" {
			gatewayURL = "http://localhost:8081"
		}
		sessionTok = os.Getenv("BOTGW_SESSION")
		if sessionTok == "" && cmd.Name() != "search" {
			return fmt.Errorf("BOTGW_SESSION is not set")
		}
		return nil
	},
}

var (
	registerPublic      bool
	registerDisplayName string
	registerDescription string
	registerCategory    string
)

var registerCmd = &cobra.Command{
	Use:   "register <username>",
	Short: "Register a new bot",
	Long: `Register a new bot. The username must end in _bot.

The bot token is printed once and cannot be retrieved again;
store it somewhere safe or rotate it later.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Bot   botInfo `json:"bot"`
			Token string  `json:"token"`
		}
		err := call("register_bot", map[string]any{
			"username":     args[0],
			"display_name": registerDisplayName,
			"description":  registerDescription,
			"category":     registerCategory,
			"is_public":    registerPublic,
		}, &result)
		if err != nil {
			return err
		}

		green := color.New(color.FgGreen)
		green.Printf("Registered %s\n", result.Bot.Username)
		fmt.Printf("  id:    %s\n", result.Bot.ID)
		fmt.Print("  token: ")
		color.New(color.FgYellow).Println(result.Token)
		color.New(color.FgHiBlack).Println("  The token is shown once. Store it now.")
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your bots",
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Bots []struct {
				Bot          botInfo `json:"bot"`
				CommandCount int     `json:"command_count"`
			} `json:"bots"`
			Total int `json:"total"`
		}
		if err := call("list_my_bots", nil, &result); err != nil {
			return err
		}

		if result.Total == 0 {
			fmt.Println("No bots registered.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tSTATUS\tPUBLIC\tUSERS\tCOMMANDS")
		for _, entry := range result.Bots {
			b := entry.Bot
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%d\t%d\n",
				b.ID, b.Username, b.Status, b.IsPublic, b.TotalUsers, entry.CommandCount)
		}
		return w.Flush()
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <bot-id|username>",
	Short: "Show one bot's profile and commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]any{"bot_id": args[0]}
		if strings.HasSuffix(args[0], "_bot") {
			body = map[string]any{"username": args[0]}
		}

		var result struct {
			Bot      botInfo `json:"bot"`
			Commands []struct {
				Name        string `json:"name"`
				Description string `json:"description"`
			} `json:"commands"`
		}
		if err := call("get_bot_info", body, &result); err != nil {
			return err
		}

		b := result.Bot
		fmt.Printf("%s (%s)\n", b.Username, b.ID)
		fmt.Printf("  display name: %s\n", b.DisplayName)
		fmt.Printf("  category:     %s\n", b.Category)
		fmt.Printf("  status:       %s\n", b.Status)
		fmt.Printf("  public:       %v\n", b.IsPublic)
		fmt.Printf("  created:      %s\n", b.CreatedAt)
		if len(result.Commands) > 0 {
			fmt.Println("  commands:")
			for _, c := range result.Commands {
				fmt.Printf("    /%s - %s\n", c.Name, c.Description)
			}
		}
		return nil
	},
}

var rotateCmd = &cobra.Command{
	Use:   "rotate <bot-id>",
	Short: "Rotate a bot's token",
	Long:  "Rotate a bot's token. The old token stops working immediately.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var result struct {
			Token string `json:"token"`
		}
		if err := call("rotate_token", map[string]any{"bot_id": args[0]}, &result); err != nil {
			return err
		}

		fmt.Print("New token: ")
		color.New(color.FgYellow).Println(result.Token)
		color.New(color.FgHiBlack).Println("The token is shown once. Store it now.")
		return nil
	},
}

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:   "delete <bot-id>",
	Short: "Delete a bot and all its data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteYes {
			return fmt.Errorf("deletion is permanent; re-run with --yes to confirm")
		}
		if err := call("delete_bot", map[string]any{"bot_id": args[0]}, nil); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

var searchCategory string

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the public bot directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := ""
		if len(args) > 0 {
			query = args[0]
		}

		var result struct {
			Bots []botInfo `json:"bots"`
		}
		err := call("search_bots", map[string]any{
			"query": query, "category": searchCategory,
		}, &result)
		if err != nil {
			return err
		}

		if len(result.Bots) == 0 {
			fmt.Println("No bots found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tNAME\tCATEGORY\tUSERS")
		for _, b := range result.Bots {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", b.Username, b.DisplayName, b.Category, b.TotalUsers)
		}
		return w.Flush()
	},
}

func init() {
	registerCmd.Flags().BoolVar(&registerPublic, "public", false, "List the bot in the public directory")
	registerCmd.Flags().StringVar(&registerDisplayName, "display-name", "", "Human-readable name")
	registerCmd.Flags().StringVar(&registerDescription, "description", "", "Short description")
	registerCmd.Flags().StringVar(&registerCategory, "category", "", "Directory category")
	deleteCmd.Flags().BoolVar(&deleteYes, "yes", false, "Confirm deletion")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "Filter by category")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(rotateCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
