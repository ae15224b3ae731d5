package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/meetai/greenrt/internal/infrastructure/config"
	"github.com/meetai/greenrt/internal/infrastructure/di"
	"github.com/meetai/greenrt/internal/modules/runtime"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		os.Exit(handleRunCommand(os.Args[2:]))
	case "list":
		os.Exit(handleListCommand(os.Args[2:]))
	case "config":
		os.Exit(handleConfigCommand(os.Args[2:]))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		fmt.Fprintf(os.Stderr, "Try 'greenrt help' for more information.\n")
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("greenrt - green-thread runtime")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  greenrt run <scenario> [options]   - Run a runtime scenario")
	fmt.Println("  greenrt list [options]             - List scenarios")
	fmt.Println("  greenrt config init [dir]          - Write a default greenrt.toml")
	fmt.Println("  greenrt config show [dir]          - Print the effective configuration")
	fmt.Println("  greenrt help                       - Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config string     Directory to search for greenrt.toml (default .)")
	fmt.Println("  -threads int       Number of worker threads (scenario default if 0)")
	fmt.Println("  -iterations int    Iterations or rounds (scenario default if 0)")
	fmt.Println("  -v                 Print every observation")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  greenrt run counter -threads 4")
	fmt.Println("  greenrt run barrier -iterations 10 -v")
}

// projectRoot returns the directory holding greenrt.toml above dir, or dir
// itself when there is none.
func projectRoot(dir string) string {
	if root, err := config.GetProjectRoot(dir); err == nil {
		return root
	}
	return dir
}

func newContainer(dir string) (*di.Container, error) {
	c := di.NewContainer(projectRoot(dir), os.Stderr)
	if err := c.Validate(); err != nil {
		_ = c.Shutdown()
		return nil, err
	}
	return c, nil
}

func handleRunCommand(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	dir := fs.String("config", ".", "directory to search for greenrt.toml")
	threads := fs.Int("threads", 0, "number of worker threads")
	iterations := fs.Int("iterations", 0, "iterations or rounds")
	verbose := fs.Bool("v", false, "print every observation")

	// the scenario name may come before the options
	var name string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if name == "" && fs.NArg() > 0 {
		name = fs.Arg(0)
	}
	if name == "" {
		fmt.Fprintf(os.Stderr, "Usage: greenrt run <scenario> [options]\n")
		return 1
	}

	c, err := newContainer(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer c.Shutdown()
	m, err := c.RuntimeModule()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := m.RuntimeService().RunScenario(ctx, runtime.RunScenarioCommand{
		Scenario:   name,
		Threads:    *threads,
		Iterations: *iterations,
	})
	if errors.Is(err, runtime.ErrUnknownScenario) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Try 'greenrt list' for the available scenarios.\n")
		return 1
	}
	if res != nil {
		printResult(res, *verbose)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if !res.Passed {
		return 1
	}
	return 0
}

func printResult(res *runtime.ScenarioResult, verbose bool) {
	status := "PASS"
	if !res.Passed {
		status = "FAIL"
	}
	fmt.Printf("%s %s (%s, %d dispatches, %d ticks) run %s\n",
		status, res.Scenario, res.Duration.Round(time.Microsecond), res.Stats.Dispatches, res.Stats.TicksDelivered, res.RunID)
	for _, line := range res.Details {
		if verbose || strings.HasPrefix(line, "FAIL") {
			fmt.Printf("  %s\n", line)
		}
	}
}

func handleListCommand(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	dir := fs.String("config", ".", "directory to search for greenrt.toml")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	c, err := newContainer(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer c.Shutdown()
	m, err := c.RuntimeModule()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, info := range m.RuntimeService().ListScenarios() {
		fmt.Printf("  %-10s threads=%-3d iterations=%-6d %s\n", info.Name, info.Threads, info.Iterations, info.Description)
	}
	return 0
}

func handleConfigCommand(args []string) int {
	if len(args) == 0 {
		fmt.Fprintf(os.Stderr, "Usage: greenrt config init|show [dir]\n")
		return 1
	}
	dir := "."
	if len(args) > 1 {
		dir = args[1]
	}

	switch args[0] {
	case "init":
		if _, err := os.Stat(filepath.Join(dir, config.FileName)); err == nil {
			fmt.Fprintf(os.Stderr, "%s already exists in %s\n", config.FileName, dir)
			return 1
		}
		if err := config.SaveConfig(dir, config.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Wrote %s to %s\n", config.FileName, dir)
		return 0
	case "show":
		cfg, err := config.LoadConfig(projectRoot(dir))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		data, err := toml.Marshal(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Print(string(data))
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config command: %s\n", args[0])
		return 1
	}
}
