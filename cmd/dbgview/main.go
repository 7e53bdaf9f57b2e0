package main

import (
	"encoding/json"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mbarlow/cellasm/pkg/debug"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	args := os.Args[1:]
	if len(args) < 1 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "--help", "-h":
		printHelp()
		os.Exit(0)
	case "--version", "-v":
		fmt.Printf("dbgview %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built: %s\n", date)
		os.Exit(0)
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to read %s: %v\n", path, err)
		os.Exit(1)
	}

	info := debug.NewInfo()
	if err := json.Unmarshal(data, info); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to parse %s: %v\n", path, err)
		os.Exit(1)
	}

	m := NewModel(path, info)
	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: dbgview <dbgmap.json>\n")
	fmt.Fprintf(os.Stderr, "Try 'dbgview --help' for more information.\n")
}

func printHelp() {
	fmt.Println("dbgview - browse a compiled unit's debug map")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  dbgview <dbgmap.json>")
	fmt.Println()
	fmt.Println("  Lists every distinct cell hash recorded in the map; for the")
	fmt.Println("  selected hash, shows its bit-offset-to-source-position table.")
	fmt.Println()
	fmt.Println("  ↑/k, ↓/j    move selection")
	fmt.Println("  y           copy selected hash to clipboard")
	fmt.Println("  q           quit")
}
