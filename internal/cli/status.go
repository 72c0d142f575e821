package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/InnClaw/InnClaw/internal/config"
	"github.com/InnClaw/InnClaw/internal/engine"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show engine status",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader("📊 InnClaw Status")
		fmt.Printf("Version: %s\n", version)

		path, err := config.ConfigPath()
		if err == nil {
			if _, statErr := os.Stat(path); statErr == nil {
				fmt.Println("Config:  ✓ Found (" + path + ")")
			} else {
				fmt.Println("Config:  ✗ Not found (run 'innclaw config init' first)")
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Config:  ✗ Invalid: %v\n", err)
			return
		}
		fmt.Printf("Mode:    %s\n", cfg.Engine.Mode)
		if cfg.Provider.APIKey != "" {
			fmt.Println("API Key: ✓ Found")
		} else {
			fmt.Println("API Key: ✗ Not found")
		}

		printEngineStatus(cfg)
	},
}

// printEngineStatus queries a running serve process through the gateway.
func printEngineStatus(cfg *config.Config) {
	client := &http.Client{Timeout: 3 * time.Second}
	req, err := http.NewRequest(http.MethodGet, "http://"+cfg.Gateway.Addr()+"/status", nil)
	if err != nil {
		return
	}
	if cfg.Gateway.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Gateway.AuthToken)
	}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Println("Engine:  ✗ Not running (gateway unreachable)")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Engine:  ? Gateway returned %d\n", resp.StatusCode)
		return
	}
	var st engine.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		fmt.Println("Engine:  ? Unreadable status response")
		return
	}
	if st.Running {
		fmt.Println("Engine:  ✓ Running")
	} else {
		fmt.Println("Engine:  ✗ Stopped")
	}
	fmt.Printf("Cycles:  %d\n", st.CyclesRun)
	fmt.Printf("Replies: %d\n", st.RepliesAppended)
	if st.LastError != "" {
		fmt.Printf("Last error: %s\n", st.LastError)
	}
}
