package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/konecto/actuator-agent/internal/app"
	"github.com/konecto/actuator-agent/internal/config"
)

// runAsk answers a single question from the terminal and exits. Each
// invocation starts a fresh conversation.
func runAsk(args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("usage: actuator-agent ask <question>")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := checkRequiredEnv(cfg); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			a.Logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	result, err := a.Agent.HandleMessage(ctx, uuid.Nil, question)
	if err != nil {
		return fmt.Errorf("handling question: %w", err)
	}

	fmt.Println(result.Response)
	return nil
}
