// Package cmd contains the CLI entry points for the actuator agent.
//
// Following the pattern of standard Go CLI tools, all application logic
// lives here and main.go stays a minimal entry point.
package cmd

import (
	"fmt"
	"os"

	"github.com/konecto/actuator-agent/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the CLI. It routes to the
// requested subcommand; version and help work even with invalid config.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			return runServe()
		case "ask":
			return runAsk(os.Args[2:])
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	printHelp()
	return nil
}

// checkRequiredEnv verifies the provider API key is present before a
// command that talks to the model provider starts. Ollama runs locally
// and needs no key.
func checkRequiredEnv(cfg *config.Config) error {
	var envVar string
	switch cfg.Provider {
	case config.ProviderGoogleAI:
		envVar = "GEMINI_API_KEY"
	case config.ProviderOpenAI:
		envVar = "OPENAI_API_KEY"
	default:
		return nil
	}

	if os.Getenv(envVar) == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable not set\n\n", envVar)
		fmt.Fprintf(os.Stderr, "The %s provider requires an API key:\n", cfg.Provider)
		fmt.Fprintf(os.Stderr, "  export %s=your-api-key\n", envVar)
		return fmt.Errorf("%s not set", envVar)
	}
	return nil
}

func printVersionInfo() error {
	fmt.Printf("actuator-agent v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

func printHelp() {
	fmt.Println("actuator-agent - catalog retrieval agent for electromechanical actuators")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  actuator-agent serve [addr]        Start the HTTP API server")
	fmt.Println("  actuator-agent ask <question>      Ask a one-shot question")
	fmt.Println("  actuator-agent version             Show version information")
	fmt.Println("  actuator-agent help                Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY               API key for the googleai provider")
	fmt.Println("  OPENAI_API_KEY               API key for the openai provider")
	fmt.Println("  ACTUATOR_PROVIDER            Model provider (googleai, openai, ollama)")
	fmt.Println("  ACTUATOR_POSTGRES_HOST       PostgreSQL host for the semantic index")
	fmt.Println("  ACTUATOR_SQLITE_PATH         Path to the part-number catalog database")
	fmt.Println("  ACTUATOR_LOG_LEVEL           Log level (debug, info, warn, error)")
}
