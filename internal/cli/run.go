package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlb-digital/hapctl/internal/pipeline"
)

func run(cmd *cobra.Command, rundownPath string) error {
	outDir, _ := cmd.Flags().GetString("out")
	transitionsDir, _ := cmd.Flags().GetString("transitions")
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	absRundown, err := filepath.Abs(rundownPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Hour)
	defer cancel()

	cfg := pipeline.Config{
		RundownPath:    absRundown,
		TransitionsDir: transitionsDir,
		OutDir:         outDir,
		Concurrency:    concurrency,

		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",

		WhisperBin:   getenvDefault("HAPCTL_WHISPER_BIN", ".cache/bin/whisper.cpp"),
		WhisperModel: os.Getenv("HAPCTL_WHISPER_MODEL"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   getenvDefault("OPENAI_ASR_MODEL", "whisper-1"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		OpenRouterAPIKey:       os.Getenv("OPENROUTER_API_KEY"),
		OpenRouterModel:        getenvDefault("OPENROUTER_MODEL", "anthropic/claude-3.5-sonnet"),
		OpenRouterBaseURL:      getenvDefault("OPENROUTER_BASE_URL", "https://openrouter.ai"),
		OpenRouterAllowedHosts: splitAllowedHosts(os.Getenv("OPENROUTER_ALLOWED_HOSTS")),
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	_, err = pipeline.Run(ctx, cfg)
	return err
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func splitAllowedHosts(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	hosts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			hosts = append(hosts, f)
		}
	}
	return hosts
}
