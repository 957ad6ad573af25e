package main

import (
	"fmt"

	"github.com/franz/dupe-janitor/internal/util"
	"github.com/spf13/cobra"
)

var similarCmd = &cobra.Command{
	Use:   "similar <file-id>",
	Short: "List files that sound like the given one",
	Long: `Compare one fingerprinted file against every other fingerprinted file
in the library and list those at or above the fingerprint threshold, most
similar first.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)
}

func runSimilar(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	found, err := a.dedupe().Similar(ids[0])
	if err != nil {
		return err
	}
	if len(found) == 0 {
		util.InfoLog("No similar files found")
		return nil
	}

	width := pathWidth()
	rows := make([][]string, 0, len(found))
	for _, c := range found {
		rows = append(rows, []string{
			fmt.Sprintf("%d", c.File.ID),
			fmt.Sprintf("%.3f", c.Score),
			describeFile(c.File),
			shortenPath(c.File.Path, width),
		})
	}
	fmt.Println(renderTable([]string{"ID", "Similarity", "Track", "Path"}, rows, []columnAlignment{alignRight, alignRight}))
	return nil
}
