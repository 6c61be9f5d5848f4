package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "spawnkit",
	Short:         "spawnkit -- process supervision for test harnesses",
	Long:          "spawnkit supervises declaratively configured child processes: spawn, stream, restart, reap.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
