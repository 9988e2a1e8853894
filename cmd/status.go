package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var serverURL string

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Query server status or a specific run",
	Long: `Queries the run server for status information.
If no run-id is provided, lists all runs.
If run-id is provided, shows detailed status for that run.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listRuns(fmt.Sprintf("%s/api/v1/runs", serverURL))
	}

	runID := args[0]
	return getRunStatus(fmt.Sprintf("%s/api/v1/runs/%s/status", serverURL, runID), runID)
}

func listRuns(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var runs []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("Found %d run(s):\n\n", len(runs))
	for _, run := range runs {
		fmt.Printf("Run ID: %s\n", run["id"])
		fmt.Printf("  State: %s\n", run["state"])
		if config, ok := run["config"].(map[string]interface{}); ok {
			fmt.Printf("  Backend: %s\n", config["backend"])
			if p, ok := config["particles"].(float64); ok {
				fmt.Printf("  Particles: %.0f\n", p)
			}
		}
		if run["batchesDone"] != nil && run["batches"] != nil {
			fmt.Printf("  Batches: %.0f/%.0f\n", run["batchesDone"], run["batches"])
		}
		fmt.Println()
	}

	return nil
}

func getRunStatus(url, runID string) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("run not found: %s", runID)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Run: %s\n", status["id"])
	fmt.Printf("State: %s\n", status["state"])
	fmt.Println()

	if config, ok := status["config"].(map[string]interface{}); ok {
		fmt.Println("Configuration:")
		fmt.Printf("  Backend: %s\n", config["backend"])
		fmt.Printf("  Device kind: %s\n", config["deviceKind"])
		if p, ok := config["particles"].(float64); ok {
			fmt.Printf("  Particles: %.0f\n", p)
		}
		if b, ok := config["batchSize"].(float64); ok {
			fmt.Printf("  Batch size: %.0f\n", b)
		}
		if s, ok := config["seed"].(float64); ok && s > 0 {
			fmt.Printf("  Seed: %.0f\n", s)
		}
		fmt.Println()
	}

	fmt.Println("Progress:")
	if status["batchesDone"] != nil && status["batches"] != nil {
		fmt.Printf("  Batches: %.0f/%.0f\n", status["batchesDone"], status["batches"])
	}
	if p, ok := status["particlesDone"].(float64); ok {
		fmt.Printf("  Particles: %.0f\n", p)
	}

	if status["elapsed"] != nil {
		elapsed := time.Duration(status["elapsed"].(float64) * float64(time.Second))
		fmt.Printf("  Elapsed: %s\n", elapsed.Round(time.Millisecond))
	}

	if rate, ok := status["particlesPerSecond"].(float64); ok && rate > 0 {
		fmt.Printf("  Throughput: %.0f particles/sec\n", rate)
	}

	if errMsg, ok := status["error"].(string); ok && errMsg != "" {
		fmt.Printf("\nError: %s\n", errMsg)
	}

	return nil
}
