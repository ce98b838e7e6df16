package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mlb-digital/hapctl/internal/logging"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present
	logging.Configure()

	root := &cobra.Command{
		Use:          "hapctl <rundown.json>",
		Short:        "Assemble a highlight video from a rundown of plays and transitions",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.Flags().String("out", "out", "Output directory")
	root.Flags().String("transitions", "transitions", "Directory of pre-rendered inning-transition clips")
	root.Flags().Int("concurrency", 4, "Number of plays processed concurrently")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
