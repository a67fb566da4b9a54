// Package main implements the discoveryctl CLI for manual operations against
// the discoveryd HTTP server and its notification bus.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the discoveryd HTTP server
	serverURL string
	// natsURL is the notification bus used by the reindex command
	natsURL string
	// notifyPrefix must match discoveryd's trigger_config.notify_channel_prefix
	notifyPrefix string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "discoveryctl",
	Short: "CLI for discoveryd operations",
	Long: `discoveryctl is a command-line interface for the discoveryd daemon.
It routes ad-hoc queries, lists registered resources, and forces re-indexing.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8765", "discoveryd server URL")
	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(healthCmd)

	reindexCmd.Flags().StringVar(&natsURL, "nats", "nats://localhost:4222", "NATS server URL")
	reindexCmd.Flags().StringVar(&notifyPrefix, "prefix", "discovery_notify_", "notification channel prefix")
}

// matchCmd routes a natural-language query
var matchCmd = &cobra.Command{
	Use:   "match <query>",
	Short: "Route a query to the best matching resource",
	Long: `Route a natural-language query through the matching engine.

Examples:
  # Route a query
  discoveryctl match "show me last week's failed orders"

  # Use a different server
  discoveryctl match --server http://localhost:8080 "list api endpoints"`,
	Args: cobra.ExactArgs(1),
	RunE: runMatch,
}

// resourcesCmd lists the registered resources
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "List registered resources",
	RunE:  runResources,
}

// reindexCmd publishes a change notification forcing a re-index
var reindexCmd = &cobra.Command{
	Use:   "reindex <table>",
	Short: "Force re-indexing of a source table",
	Long: `Publish a change notification for a source table, forcing discoveryd to
re-vectorize the resources it backs.

Examples:
  # Re-index one source table
  discoveryctl reindex api_tools.api_definitions

  # Use a different bus or channel prefix
  discoveryctl reindex --nats nats://broker:4222 --prefix vector_update_ sales.orders`,
	Args: cobra.ExactArgs(1),
	RunE: runReindex,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check discoveryd server health",
	RunE:  runHealth,
}

// MatchRequest matches pkg/server MatchRequest
type MatchRequest struct {
	Query   string            `json:"query"`
	Context map[string]string `json:"context,omitempty"`
}

// MatchResponse mirrors the fields of matcher.Result the CLI prints
type MatchResponse struct {
	NoMatch     bool    `json:"no_match"`
	ResourceID  string  `json:"resource_id"`
	Tool        string  `json:"tool"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// ResourceResponse matches pkg/server ResourceResponse
type ResourceResponse struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	SourceTable string `json:"source_table"`
	Tool        string `json:"tool"`
	Enabled     bool   `json:"enabled"`
}

// HealthResponse matches pkg/server HealthResponse
type HealthResponse struct {
	Status    string `json:"status"`
	Resources int    `json:"resources"`
}

// TriggerEvent matches internal/trigger Event
type TriggerEvent struct {
	SourceTable  string    `json:"source_table"`
	Operation    string    `json:"operation"`
	AffectedKeys []string  `json:"affected_keys,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// runMatch handles the match command
func runMatch(cmd *cobra.Command, args []string) error {
	reqJSON, err := json.Marshal(MatchRequest{Query: args[0]})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := post(fmt.Sprintf("%s/v1/match", serverURL), reqJSON)
	if err != nil {
		return err
	}

	var match MatchResponse
	if err := json.Unmarshal(body, &match); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if match.NoMatch {
		fmt.Println("No matching resource")
		return nil
	}

	fmt.Printf("Resource:    %s\n", match.ResourceID)
	fmt.Printf("Tool:        %s\n", match.Tool)
	fmt.Printf("Confidence:  %.3f\n", match.Confidence)
	fmt.Printf("Explanation: %s\n", match.Explanation)
	return nil
}

// runResources handles the resources command
func runResources(cmd *cobra.Command, args []string) error {
	body, err := get(fmt.Sprintf("%s/v1/resources", serverURL))
	if err != nil {
		return err
	}

	var resources []ResourceResponse
	if err := json.Unmarshal(body, &resources); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	for _, r := range resources {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		fmt.Printf("%-30s %-10s %-30s %s (%s)\n", r.ID, r.Type, r.SourceTable, r.Tool, state)
	}
	return nil
}

// runReindex handles the reindex command
func runReindex(cmd *cobra.Command, args []string) error {
	table := args[0]

	nc, err := nats.Connect(natsURL, nats.Timeout(5*time.Second))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}
	defer nc.Close()

	event, err := json.Marshal(TriggerEvent{
		SourceTable: table,
		Operation:   "UPDATE",
		OccurredAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := notifyPrefix + table
	if err := nc.Publish(subject, event); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	if err := nc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	fmt.Printf("Re-index requested for %s (subject %s)\n", table, subject)
	return nil
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, args []string) error {
	body, err := get(fmt.Sprintf("%s/health", serverURL))
	if err != nil {
		return err
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	fmt.Printf("Resources:     %d\n", health.Resources)
	return nil
}

func post(url string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

func get(url string) ([]byte, error) {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
