package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	recallDeep bool
)

// recallCmd represents the recall command
var recallCmd = &cobra.Command{
	Use:   "recall <interest>",
	Short: "Recall memories relevant to an interest",
	Long: `Ask the project's backend what it remembers about an interest.

Starts a backend for the project if none is running. The default pass
reads only memories whose keywords relate to the interest; --deep has
the backend read every memory, which is slower but more thorough.`,
	Args: cobra.ExactArgs(1),
	RunE: runRecall,
}

func init() {
	recallCmd.Flags().BoolVar(&recallDeep, "deep", false, "read every memory instead of keyword-relevant ones")
	rootCmd.AddCommand(recallCmd)
}

func runRecall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	project, err := resolveProject()
	if err != nil {
		return err
	}

	c, err := newClient(cfg, project)
	if err != nil {
		return err
	}
	defer c.Close()

	report, err := c.Recall(cmd.Context(), args[0], recallDeep)
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Println("No relevant memories.")
		return nil
	}
	fmt.Println(*report)
	return nil
}
