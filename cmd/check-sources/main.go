// Diagnostic program for the literature source checker.
// Fetches each URL the way a research run would and prints what it found.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/lemmata/internal/config"
	"github.com/ppiankov/lemmata/internal/sources"
)

func main() {
	fmt.Println("=== Literature Source Check ===")
	fmt.Println()

	urls := os.Args[1:]
	if len(urls) == 0 {
		urls = []string{
			"https://arxiv.org/abs/math/0211159",                    // Primary: preprint
			"https://en.wikipedia.org/wiki/Fermat%27s_Last_Theorem", // Secondary: encyclopedia
			"seed://input", // Sentinel, never fetched
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg := config.Default()
	checker := sources.NewChecker(cfg.Sources, cfg.Workers.Sources, zap.NewNop())

	for _, url := range urls {
		fmt.Printf("Checking: %s\n", url)
		fmt.Println(strings.Repeat("-", 60))

		status := checker.Check(ctx, url)
		switch {
		case status.Skipped:
			fmt.Printf("  - Skipped")
			if status.Error != "" {
				fmt.Printf(" (%s)", status.Error)
			}
			fmt.Println()
		case status.Reachable:
			fmt.Printf("  ✓ Reachable (HTTP %d)\n", status.StatusCode)
			if status.Title != "" {
				fmt.Printf("    Title: %s\n", status.Title)
			}
		default:
			fmt.Printf("  ✗ Unreachable")
			if status.StatusCode != 0 {
				fmt.Printf(" (HTTP %d)", status.StatusCode)
			}
			if status.Error != "" {
				fmt.Printf(": %s", status.Error)
			}
			fmt.Println()
		}
		fmt.Printf("    Authority: %s\n\n", status.Authority)
	}

	fmt.Println("=== Check Complete ===")
	fmt.Println("\nNote: robots.txt is honoured, so some pages are skipped on purpose.")
}
