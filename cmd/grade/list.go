package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/noah-isme/scorestream-api/internal/grader"
)

var showStarter bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the exercises",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		printExercises(cmd.OutOrStdout(), grader.DefaultCatalogue(), showStarter)
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&showStarter, "starter", false, "include starter code")
}

func printExercises(w io.Writer, catalogue *grader.Catalogue, starter bool) {
	for _, exercise := range catalogue.All() {
		fmt.Fprintf(w, "%d. %s\n   %s\n", exercise.ID, exercise.Title, exercise.Description)
		if starter && exercise.StarterCode != "" {
			fmt.Fprintf(w, "\n%s\n", exercise.StarterCode)
		}
	}
}
