package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vmishra/bookflix/internal/config"
	"github.com/vmishra/bookflix/internal/home"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the bookflix home directory and a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		path := h.ConfigPath()
		if cfgFile != "" {
			path = cfgFile
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}

		fmt.Printf("Created %s\n", path)
		fmt.Println("Edit it to set database_url, books_path, and openrouter_api_key.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
