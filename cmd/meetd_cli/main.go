package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/meetd/meetd/agent/api/http_api/responses"
	"github.com/meetd/meetd/agent/types"
	"github.com/meetd/meetd/proposal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const (
	flagListenAddr = "listen_addr"
	flagAPIKey     = "api_key"
)

func init() {
	rootCmd.PersistentFlags().String(flagListenAddr, "localhost:8080", "Agent daemon address")
	rootCmd.PersistentFlags().String(flagAPIKey, os.Getenv("MEETD_API_KEY"), "API key (defaults to MEETD_API_KEY)")
}

var rootCmd = &cobra.Command{
	Use:   "meetd_cli",
	Short: "meetd scheduling agent cli utilities",
}

func main() {
	rootCmd.AddCommand(
		registerCommand(),
		getPubKeyCommand(),
		proposeCommand(),
		inboxCommand(),
		sentCommand(),
		acceptCommand(),
		declineCommand(),
		availabilityCommand(),
		verifyCommand(),
		receiveCommand(),
		registerWebhookCommand(),
		removeWebhookCommand(),
		testWebhookCommand(),
	)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute root command: %v", err)
	}
}

type apiResponse struct {
	Result       json.RawMessage `json:"result"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

func request(cmd *cobra.Command, method, path string, body interface{}, out interface{}) error {
	listenAddr, err := cmd.Flags().GetString(flagListenAddr)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %v", err)
	}
	apiKey, err := cmd.Flags().GetString(flagAPIKey)
	if err != nil {
		return fmt.Errorf("failed to read configuration: %v", err)
	}

	var reqBody []byte
	if body != nil {
		if reqBody, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %v", err)
		}
	}

	httpReq, err := http.NewRequest(method, fmt.Sprintf("http://%s%s", listenAddr, path), bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to reach agent: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read body: %w", err)
	}

	var response apiResponse
	if err = json.Unmarshal(responseBody, &response); err != nil {
		return fmt.Errorf("failed to unmarshal response: %v", err)
	}
	if response.ErrorMessage != "" {
		return fmt.Errorf("request failed: %s", response.ErrorMessage)
	}
	if out != nil {
		if err = json.Unmarshal(response.Result, out); err != nil {
			return fmt.Errorf("failed to unmarshal result: %v", err)
		}
	}
	return nil
}

func colorStatus(status proposal.Status) string {
	switch status {
	case proposal.StatusAccepted:
		return color.GreenString(status.String())
	case proposal.StatusPending:
		return color.YellowString(status.String())
	default:
		return color.RedString(status.String())
	}
}

func registerCommand() *cobra.Command {
	var visibility string
	cmd := &cobra.Command{
		Use:   "register [email]",
		Args:  cobra.ExactArgs(1),
		Short: "registers a user on the agent and prints the API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result responses.RegisterResponse
			if err := request(cmd, http.MethodPost, "/register", map[string]string{
				"email":      args[0],
				"visibility": visibility,
			}, &result); err != nil {
				return err
			}
			fmt.Printf("User ID: %s\n", result.User.ID)
			fmt.Printf("Public key: %s\n", result.User.PublicKey)
			fmt.Printf("API key (store it now, it is not shown again): %s\n", color.GreenString(result.APIKey))
			return nil
		},
	}
	cmd.Flags().StringVar(&visibility, "visibility", "busy_only", "Calendar visibility: busy_only, masked or full")
	return cmd
}

func getPubKeyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get_pubkey [email]",
		Args:  cobra.ExactArgs(1),
		Short: "returns the signing public key for an email",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result responses.PubKeyResponse
			if err := request(cmd, http.MethodGet, "/getPubKey/"+args[0], nil, &result); err != nil {
				return err
			}
			fmt.Println(result.PublicKey)
			return nil
		},
	}
}

func proposeCommand() *cobra.Command {
	var slotStart, title, description string
	var duration int
	cmd := &cobra.Command{
		Use:   "propose [email]",
		Args:  cobra.ExactArgs(1),
		Short: "issues a signed meeting proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse(time.RFC3339, slotStart)
			if err != nil {
				return fmt.Errorf("failed to parse slot start: %v", err)
			}

			var result responses.IssueProposalResponse
			if err := request(cmd, http.MethodPost, "/proposals", map[string]interface{}{
				"to":               args[0],
				"slot_start":       start,
				"duration_minutes": duration,
				"title":            title,
				"description":      description,
			}, &result); err != nil {
				return err
			}
			fmt.Printf("Proposal ID: %s\n", result.ProposalID)
			fmt.Printf("Accept link: %s\n", result.AcceptLink)
			fmt.Printf("Signed proposal:\n%s\n", result.SignedProposal)
			return nil
		},
	}
	cmd.Flags().StringVar(&slotStart, "start", "", "Slot start, RFC3339 (e.g. 2026-09-03T10:00:00Z)")
	cmd.Flags().IntVar(&duration, "duration", 30, "Duration in minutes")
	cmd.Flags().StringVar(&title, "title", "", "Meeting title")
	cmd.Flags().StringVar(&description, "description", "", "Meeting description")
	return cmd
}

func printProposals(items []types.InboxProposal) {
	for _, item := range items {
		fmt.Printf("%s  %s  %s (%d min)  from %s  [%s]\n",
			item.ID,
			item.Slot.Start.Format(time.RFC3339),
			item.Title,
			item.Slot.DurationMinutes,
			item.From,
			colorStatus(item.Status),
		)
	}
}

func inboxCommand() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "lists proposals addressed to you",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/inbox"
			if status != "" {
				path += "?status=" + status
			}
			var items []types.InboxProposal
			if err := request(cmd, http.MethodGet, path, nil, &items); err != nil {
				return err
			}
			printProposals(items)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status: pending, accepted, declined or expired")
	return cmd
}

func sentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sent",
		Short: "lists proposals you issued",
		RunE: func(cmd *cobra.Command, args []string) error {
			var items []types.InboxProposal
			if err := request(cmd, http.MethodGet, "/proposals/sent", nil, &items); err != nil {
				return err
			}
			printProposals(items)
			return nil
		},
	}
}

func acceptCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "accept [proposal id]",
		Args:  cobra.ExactArgs(1),
		Short: "accepts a pending proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result responses.AcceptProposalResponse
			if err := request(cmd, http.MethodPost, "/proposals/"+args[0]+"/accept", nil, &result); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", colorStatus(result.Status))
			if result.Event != nil && result.Event.Link != "" {
				fmt.Printf("Calendar event: %s\n", result.Event.Link)
			}
			return nil
		},
	}
}

func declineCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decline [proposal id]",
		Args:  cobra.ExactArgs(1),
		Short: "declines a proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result responses.DeclineProposalResponse
			if err := request(cmd, http.MethodPost, "/proposals/"+args[0]+"/decline", nil, &result); err != nil {
				return err
			}
			fmt.Printf("Status: %s\n", colorStatus(result.Status))
			return nil
		},
	}
}

func availabilityCommand() *cobra.Command {
	var window string
	var duration int
	cmd := &cobra.Command{
		Use:   "avail [email]",
		Args:  cobra.ExactArgs(1),
		Short: "finds ranked mutual slots with a counterparty",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/availability?with=%s&window=%s&duration_minutes=%d",
				args[0], window, duration)
			var result responses.AvailabilityResponse
			if err := request(cmd, http.MethodGet, path, nil, &result); err != nil {
				return err
			}
			for _, slot := range result.Slots {
				fmt.Printf("%s - %s  score %.2f\n",
					slot.Start.Format(time.RFC3339),
					slot.End.Format("15:04"),
					slot.Score,
				)
			}
			if len(result.Slots) == 0 {
				fmt.Println("no mutual slots in the window")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&window, "window", "", "Search window, YYYY-MM-DD..YYYY-MM-DD")
	cmd.Flags().IntVar(&duration, "duration", 30, "Duration in minutes")
	return cmd
}

func verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [signed proposal]",
		Args:  cobra.ExactArgs(1),
		Short: "verifies a signed proposal envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result responses.VerifyProposalResponse
			if err := request(cmd, http.MethodPost, "/proposals/verify", map[string]string{
				"signed_proposal": args[0],
			}, &result); err != nil {
				return err
			}
			if !result.Valid {
				fmt.Printf("%s: %s\n", color.RedString("invalid"), result.Reason)
				return nil
			}
			fmt.Println(color.GreenString("valid"))
			fmt.Printf("From: %s\nTo: %s\nSlot: %s (%d min)\nExpires: %s\n",
				result.Proposal.From,
				result.Proposal.To,
				result.Proposal.Slot.Start.Format(time.RFC3339),
				result.Proposal.Slot.DurationMinutes,
				result.Proposal.ExpiresAt.Format(time.RFC3339),
			)
			return nil
		},
	}
}

func receiveCommand() *cobra.Command {
	var autoAccept bool
	cmd := &cobra.Command{
		Use:   "receive [signed proposal]",
		Args:  cobra.ExactArgs(1),
		Short: "ingests a signed proposal received out of band",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result responses.ReceiveProposalResponse
			if err := request(cmd, http.MethodPost, "/agent/inbox", map[string]interface{}{
				"signed_proposal": args[0],
				"auto_accept":     autoAccept,
			}, &result); err != nil {
				return err
			}
			fmt.Printf("Proposal ID: %s\n", result.ProposalID)
			fmt.Printf("Status: %s\n", colorStatus(result.Status))
			return nil
		},
	}
	cmd.Flags().BoolVar(&autoAccept, "auto-accept", false, "Accept immediately after verification")
	return cmd
}

func registerWebhookCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook_register [url]",
		Args:  cobra.ExactArgs(1),
		Short: "registers a webhook URL and prints its signing secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result responses.WebhookResponse
			if err := request(cmd, http.MethodPost, "/webhooks", map[string]string{
				"url": args[0],
			}, &result); err != nil {
				return err
			}
			fmt.Printf("Webhook secret (store it now, it is not shown again): %s\n",
				color.GreenString(result.Secret))
			return nil
		},
	}
}

func removeWebhookCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook_remove",
		Short: "removes the registered webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := request(cmd, http.MethodDelete, "/webhooks", nil, nil); err != nil {
				return err
			}
			fmt.Println("webhook removed")
			return nil
		},
	}
}

func testWebhookCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook_test",
		Short: "delivers a signed test event to the registered webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			var result string
			if err := request(cmd, http.MethodPost, "/webhooks/test", nil, &result); err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
	}
}
