package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	oauth2google "golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/harrisonrobin/tasksync/internal/auth"
	"github.com/harrisonrobin/tasksync/internal/config"
	"github.com/harrisonrobin/tasksync/internal/engine"
	"github.com/harrisonrobin/tasksync/internal/provider"
	"github.com/harrisonrobin/tasksync/internal/providers/google"
	"github.com/harrisonrobin/tasksync/internal/providers/msgraph"
	"github.com/harrisonrobin/tasksync/internal/ratelimit"
	"github.com/harrisonrobin/tasksync/internal/state"
)

var googleScopes = []string{"https://www.googleapis.com/auth/tasks"}
var msgraphScopes = []string{"Tasks.ReadWrite", "offline_access"}

func main() {
	// 1. Parse flags
	dryRun := flag.Bool("dry-run", false, "compute what would change without writing to any provider")
	once := flag.Bool("once", false, "run a single cycle and exit (overrides config's pollIntervalMinutes)")
	showConfig := flag.Bool("print-config", false, "print the resolved config path and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if *dryRun {
		cfg.DryRun = true
	}

	if *showConfig {
		path, _ := config.GetConfigPath()
		fmt.Println(path)
		return
	}

	// 2. Build the provider registry from configured OAuth client files
	ctx := context.Background()

	reg, err := buildRegistry(ctx, cfg)
	if err != nil {
		log.Fatalf("build provider registry: %v", err)
	}

	// 3. Wire the engine around the state store and registry
	logger := log.New(os.Stderr, "[tasksync] ", log.LstdFlags)
	store := state.NewFileStore(cfg.StateDir, logger)
	eng := engine.NewEngine(store, reg, cfg.StateDir, cfg.Mode, cfg.TombstoneTTLDays, cfg.DryRun, logger)

	// 4. Run once, or poll forever at the configured interval
	if *once || cfg.PollIntervalMinutes <= 0 {
		runCycle(ctx, eng)
		return
	}

	interval := time.Duration(cfg.PollIntervalMinutes) * time.Minute

	for {
		runCycle(ctx, eng)
		time.Sleep(interval)
	}
}

func runCycle(ctx context.Context, eng *engine.Engine) {
	report, err := eng.RunCycle(ctx)
	if err != nil {
		log.Printf("cycle failed: %v", err)
		return
	}

	log.Printf("cycle done: %d actions, %d noops, %d conflicts, %d errors, %v",
		len(report.Actions), report.NoopCount, len(report.Conflicts), len(report.Errors), report.Duration)

	for _, e := range report.Errors {
		log.Printf("cycle error: %v", e)
	}
}

// buildRegistry authenticates each configured provider and wraps it
// behind provider.Port, in configuration order.
func buildRegistry(ctx context.Context, cfg *config.Config) (*provider.Registry, error) {
	limiters := ratelimit.New(5, 5)

	ports := make(map[string]provider.Port, len(cfg.ProviderOrder))

	for _, tag := range cfg.ProviderOrder {
		pc, ok := cfg.Providers[tag]
		if !ok {
			return nil, fmt.Errorf("no client credentials configured for provider %q", tag)
		}

		switch tag {
		case "google":
			port, err := newGoogleProvider(ctx, pc, limiters)
			if err != nil {
				return nil, fmt.Errorf("google provider: %w", err)
			}

			ports[tag] = port
		case "msgraph":
			port, err := newMsgraphProvider(ctx, pc, limiters)
			if err != nil {
				return nil, fmt.Errorf("msgraph provider: %w", err)
			}

			ports[tag] = port
		default:
			return nil, fmt.Errorf("unknown provider tag %q", tag)
		}
	}

	return provider.NewRegistry(cfg.ProviderOrder, ports)
}

func newGoogleProvider(ctx context.Context, pc config.ProviderConfig, limiters *ratelimit.Limiters) (*google.Provider, error) {
	creds, err := auth.LoadCredentials(pc.ClientSecretsFile)
	if err != nil {
		return nil, err
	}

	httpClient, err := auth.GetClient(ctx, oauth2google.Endpoint, creds, googleScopes, resolveTokenFile(pc.TokenFile))
	if err != nil {
		return nil, err
	}

	httpClient.Transport = limiters.Transport("google", httpClient.Transport)

	return google.New(ctx, httpClient, "", log.New(os.Stderr, "[google] ", log.LstdFlags))
}

func newMsgraphProvider(ctx context.Context, pc config.ProviderConfig, limiters *ratelimit.Limiters) (*msgraph.Provider, error) {
	creds, err := auth.LoadCredentials(pc.ClientSecretsFile)
	if err != nil {
		return nil, err
	}

	httpClient, err := auth.GetClient(ctx, microsoft.AzureADEndpoint("common"), creds, msgraphScopes, resolveTokenFile(pc.TokenFile))
	if err != nil {
		return nil, err
	}

	httpClient.Transport = limiters.Transport("msgraph", httpClient.Transport)

	return msgraph.New(ctx, httpClient, "", log.New(os.Stderr, "[msgraph] ", log.LstdFlags))
}

func resolveTokenFile(configured string) string {
	if configured != "" {
		return configured
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "token.json"
	}

	return filepath.Join(home, ".config", "tasksync", "token.json")
}
