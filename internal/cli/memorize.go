package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// memorizeCmd represents the memorize command
var memorizeCmd = &cobra.Command{
	Use:   "memorize <content>",
	Short: "Hand the backend something to remember",
	Long: `Hand the project's backend a piece of information to remember.

The backend decides in the background whether and how to store it:
it may create a new memory, fold the information into an existing
one, or drop it. Pass - as the content to read it from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runMemorize,
}

func init() {
	rootCmd.AddCommand(memorizeCmd)
}

func runMemorize(cmd *cobra.Command, args []string) error {
	content := args[0]
	if content == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("content is empty")
	}

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

	if err := c.Memorize(cmd.Context(), content); err != nil {
		return err
	}
	fmt.Println("Accepted. The backend is working it into the project's memories.")
	return nil
}
