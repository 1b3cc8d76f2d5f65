package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rayzor/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the incremental module cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached module entry",
	RunE:  runCacheClear,
}

var cacheDirCmd = &cobra.Command{
	Use:   "dir",
	Short: "Print the module cache directory",
	RunE:  runCacheDir,
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheDirCmd)
}

func runCacheClear(*cobra.Command, []string) error {
	store, err := cache.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open module cache: %w", err)
	}
	if err := store.DropAll(); err != nil {
		return fmt.Errorf("failed to clear module cache: %w", err)
	}
	fmt.Fprintln(os.Stdout, "module cache cleared")
	return nil
}

func runCacheDir(*cobra.Command, []string) error {
	store, err := cache.OpenDefault()
	if err != nil {
		return fmt.Errorf("failed to open module cache: %w", err)
	}
	fmt.Fprintln(os.Stdout, store.Dir())
	return nil
}
