package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/franz/dupe-janitor/internal/util"
	"github.com/spf13/cobra"
)

var compareCmd = &cobra.Command{
	Use:   "compare <file-id> <file-id>",
	Short: "Explain how two library files compare",
	Long: `Score two files field by field with the metadata matcher and, when both
are fingerprinted, with the acoustic matcher.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().Bool("json", false, "print the comparison as JSON")
}

func runCompare(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	cmp, err := a.dedupe().Compare(ids[0], ids[1])
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cmp)
	}

	fmt.Printf("A: [%d] %s\n", cmp.A.ID, cmp.A.Path)
	fmt.Printf("B: [%d] %s\n\n", cmp.B.ID, cmp.B.Path)

	rows := make([][]string, 0, len(cmp.Metadata.Fields))
	for _, f := range cmp.Metadata.Fields {
		status := "no match"
		switch {
		case f.Missing:
			status = "skipped"
		case f.Disqualifying:
			status = "disqualified"
		case f.Matched:
			status = "match"
		}
		rows = append(rows, []string{string(f.Field), fmt.Sprintf("%.2f", f.Score), status, f.Detail})
	}
	fmt.Println(renderTable([]string{"Field", "Score", "Result", "Detail"}, rows, []columnAlignment{alignLeft, alignRight}))

	verdict := "not duplicates"
	if cmp.Metadata.Duplicate {
		verdict = "duplicates"
	}
	fmt.Printf("\nMetadata: %d/%d fields matched (need %d), similarity %.2f: %s\n",
		cmp.Metadata.MatchedFields, len(cmp.Metadata.Fields), cmp.Metadata.MinFields, cmp.Metadata.Similarity, verdict)

	if cmp.FingerprintSimilarity != nil {
		verdict = "not duplicates"
		if cmp.FingerprintDuplicate {
			verdict = "duplicates"
		}
		fmt.Printf("Fingerprint: similarity %.3f: %s\n", *cmp.FingerprintSimilarity, verdict)
	} else {
		util.InfoLog("Fingerprint: not available for both files")
	}
	return nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: invalid file id %q", util.ErrInvalidInput, arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
