// ABOUTME: Cobra command for interactive RapidAPI source setup.
// ABOUTME: Launches a bubbletea TUI wizard to collect and validate API credentials.
package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/2389-research/postsync/internal/config"
	"github.com/2389-research/postsync/internal/tui"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Connect the RapidAPI LinkedIn source",
	Long:  "Interactive wizard to configure the RapidAPI base URL, LinkedIn profile, API key, and how many posts to keep.",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	// Raw, so defaults and env secrets are not written back into the file.
	cfg, err := config.LoadRaw(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	model := tui.NewSetupModel(
		cfg.Sources.RapidAPI.BaseURL,
		cfg.Sources.RapidAPI.Profile,
		cfg.Sources.RapidAPI.APIKey,
	).WithMaxPosts(cfg.Store.MaxPosts)

	p := tea.NewProgram(model)
	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tui.SetupModel)
	if !final.ShouldSave() {
		fmt.Println("Setup cancelled.")
		return nil
	}

	apiURL, profile, apiKey := final.Result()
	cfg.Sources.RapidAPI.BaseURL = apiURL
	cfg.Sources.RapidAPI.Profile = profile
	cfg.Sources.RapidAPI.APIKey = apiKey
	cfg.Store.MaxPosts = final.MaxPosts()

	if err := cfg.SaveTo(path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Printf("Config saved to %s\n", path)
	return nil
}
