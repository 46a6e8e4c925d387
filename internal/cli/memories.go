package cli

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/mnemo/pkg/store"
)

var (
	memoriesVersion string
)

// memoriesCmd groups direct store maintenance commands
var memoriesCmd = &cobra.Command{
	Use:   "memories",
	Short: "Inspect and maintain a project's memories directly",
	Long: `Work with the project's memory files on disk without going
through a backend.

Keywords are passed comma-separated, e.g. "auth,jwt,tokens". Commands
that change a memory take --version with the version you last read;
the change aborts if the memory moved on since.`,
}

var memoriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all memories by keyword set",
	RunE:  runMemoriesList,
}

var memoriesReadCmd = &cobra.Command{
	Use:   "read <keywords>",
	Short: "Print one memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoriesRead,
}

var memoriesDeleteCmd = &cobra.Command{
	Use:   "delete <keywords>",
	Short: "Delete one memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoriesDelete,
}

var memoriesReassignCmd = &cobra.Command{
	Use:   "reassign <keywords> <new-keywords>",
	Short: "Move a memory to a new keyword set",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemoriesReassign,
}

func init() {
	memoriesDeleteCmd.Flags().StringVar(&memoriesVersion, "version", "", "version the memory is expected to be at")
	memoriesDeleteCmd.MarkFlagRequired("version")
	memoriesReassignCmd.Flags().StringVar(&memoriesVersion, "version", "", "version the memory is expected to be at")
	memoriesReassignCmd.MarkFlagRequired("version")

	memoriesCmd.AddCommand(memoriesListCmd)
	memoriesCmd.AddCommand(memoriesReadCmd)
	memoriesCmd.AddCommand(memoriesDeleteCmd)
	memoriesCmd.AddCommand(memoriesReassignCmd)
	rootCmd.AddCommand(memoriesCmd)
}

// openStore opens the project's store without a quality gate; the
// gate guards agent writes, not deliberate operator edits.
func openStore() (*store.Store, error) {
	project, err := resolveProject()
	if err != nil {
		return nil, err
	}
	return store.New(store.Config{
		ProjectDir: project,
		Logger:     zerolog.Nop(),
	})
}

func splitKeywords(arg string) []string {
	parts := strings.Split(arg, ",")
	keywords := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			keywords = append(keywords, part)
		}
	}
	return keywords
}

func runMemoriesList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}

	entries := s.List()
	if len(entries) == 0 {
		fmt.Println("No memories.")
		return nil
	}
	for _, entry := range entries {
		fmt.Println(strings.Join(entry.Keywords, ", "))
	}
	return nil
}

func runMemoriesRead(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}

	snap, err := s.Read(splitKeywords(args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("Keywords: %s\n", strings.Join(snap.Keywords, ", "))
	fmt.Printf("Version: %s\n\n", snap.Version)
	fmt.Println(snap.Content)
	return nil
}

func runMemoriesDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}

	if err := s.Delete(splitKeywords(args[0]), memoriesVersion); err != nil {
		return err
	}
	fmt.Println("Deleted.")
	return nil
}

func runMemoriesReassign(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}

	snap, err := s.Reassign(cmd.Context(), splitKeywords(args[0]), memoriesVersion, splitKeywords(args[1]))
	if err != nil {
		return err
	}
	fmt.Printf("Reassigned to: %s\n", strings.Join(snap.Keywords, ", "))
	fmt.Printf("New version: %s\n", snap.Version)
	return nil
}
