package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memoria/internal/config"
	"github.com/nextlevelbuilder/memoria/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	var probeEmbedding bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context(), probeEmbedding)
		},
	}
	cmd.Flags().BoolVar(&probeEmbedding, "embed", false, "also embed a test string (calls the provider)")
	return cmd
}

func runDoctor(ctx context.Context, probeEmbedding bool) {
	fmt.Println("memoria doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", protocol.Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults + env)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// Embedding
	fmt.Println()
	fmt.Println("  Embedding:")
	fmt.Printf("    %-12s %s\n", "Provider:", cfg.Embedding.Provider)
	fmt.Printf("    %-12s %s (%d dims)\n", "Model:", cfg.Embedding.Model, cfg.Embedding.Dimensions)
	if cfg.Embedding.Provider == config.ProviderOpenAI {
		checkSecret("API key", cfg.Embedding.APIKey)
		if cfg.Embedding.APIBase != "" {
			fmt.Printf("    %-12s %s\n", "API base:", cfg.Embedding.APIBase)
		}
	}
	fmt.Printf("    %-12s %s\n", "Redis cache:", enabledString(cfg.Embedding.RedisURL != ""))

	// Store
	fmt.Println()
	fmt.Println("  Store:")
	fmt.Printf("    %-12s %s\n", "Backend:", cfg.Database.Backend)
	checkStore(ctx, cfg)

	if probeEmbedding {
		checkEmbedding(ctx, cfg)
	}

	// Server
	fmt.Println()
	fmt.Println("  Server:")
	fmt.Printf("    %-12s %s\n", "Transport:", cfg.Server.Transport)
	if cfg.Server.Transport != "stdio" {
		fmt.Printf("    %-12s %s\n", "Listen:", cfg.Server.Listen)
		checkSecret("Auth token", cfg.Server.AuthToken)
	}
	if cfg.Server.RateLimitRPM > 0 {
		fmt.Printf("    %-12s %d/min per client\n", "Rate limit:", cfg.Server.RateLimitRPM)
	} else {
		fmt.Printf("    %-12s disabled\n", "Rate limit:")
	}
	fmt.Printf("    %-12s %s\n", "Telemetry:", enabledString(cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint != ""))

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

// checkStore opens the configured store, which runs the schema and dimension checks.
func checkStore(ctx context.Context, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sc := storeConfig(cfg)
	sc.AutoMigrate = false
	vs, err := openVectorStore(ctx, sc)
	if err != nil {
		fmt.Printf("    %-12s FAILED: %s\n", "Status:", err)
		return
	}
	defer vs.Close()
	fmt.Printf("    %-12s OK (%d dims)\n", "Status:", vs.Dimensions())
}

func checkEmbedding(ctx context.Context, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	emb, err := openEmbedder(ctx, cfg)
	if err != nil {
		fmt.Printf("    %-12s FAILED: %s\n", "Embed test:", err)
		return
	}
	defer emb.Close()

	start := time.Now()
	vecs, err := emb.Embed(ctx, []string{"memoria doctor"})
	if err != nil {
		fmt.Printf("    %-12s FAILED: %s\n", "Embed test:", err)
		return
	}
	got := 0
	if len(vecs) == 1 {
		got = len(vecs[0])
	}
	status := "OK"
	if got != cfg.Embedding.Dimensions {
		status = fmt.Sprintf("MISMATCH (config says %d)", cfg.Embedding.Dimensions)
	}
	fmt.Printf("    %-12s %s, %d dims in %s\n", "Embed test:", status, got, time.Since(start).Round(time.Millisecond))
}

func checkSecret(name, secret string) {
	if secret != "" {
		fmt.Printf("    %-12s %s\n", name+":", maskSecret(secret))
	} else {
		fmt.Printf("    %-12s (not configured)\n", name+":")
	}
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

func enabledString(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
