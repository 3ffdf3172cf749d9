package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "threadlens",
		Short: "Bot that extracts text from images posted in chat threads",
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and job dispatcher",
		Run: func(_ *cobra.Command, _ []string) {
			runServe()
		},
	})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
