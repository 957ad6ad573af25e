package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/franz/dupe-janitor/internal/resolve"
	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

var dirsCmd = &cobra.Command{
	Use:   "dirs",
	Short: "List directory pairs that hold copies of the same tracks",
	Long: `List every pair of directories that share duplicate files, most
shared files first. Use "dj dirs resolve" to keep one side of a pair.`,
	RunE: runDirs,
}

var dirsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Delete the copies in one directory that also exist elsewhere",
	Long: `For every duplicate group, delete the members stored under the
--delete directory as long as the group keeps at least one member outside
it. Without --execute only the files that would be deleted are listed.`,
	RunE: runDirsResolve,
}

func init() {
	rootCmd.AddCommand(dirsCmd)
	dirsCmd.AddCommand(dirsResolveCmd)

	dirsResolveCmd.Flags().String("keep", "", "directory whose files are kept")
	dirsResolveCmd.Flags().String("delete", "", "directory whose duplicate files are deleted")
	dirsResolveCmd.Flags().Bool("execute", false, "delete the files")
	dirsResolveCmd.MarkFlagRequired("keep")
	dirsResolveCmd.MarkFlagRequired("delete")
}

func runDirs(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	conflicts, err := a.directories().Conflicts(cmd.Context())
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		util.SuccessLog("No directories share duplicate files")
		return nil
	}

	rows := lo.Map(conflicts, func(c resolve.DirectoryConflict, _ int) []string {
		return []string{fmt.Sprintf("%d", c.Count), c.DirectoryA, c.DirectoryB}
	})
	fmt.Println(renderTable([]string{"Shared", "Directory A", "Directory B"}, rows, []columnAlignment{alignRight}))
	return nil
}

func runDirsResolve(cmd *cobra.Command, args []string) error {
	keepDir, _ := cmd.Flags().GetString("keep")
	deleteDir, _ := cmd.Flags().GetString("delete")
	execute, _ := cmd.Flags().GetBool("execute")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	resolver := a.directories()
	if !execute {
		files, err := resolver.PreviewResolution(cmd.Context(), keepDir, deleteDir)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			util.SuccessLog("Nothing to delete in %s", deleteDir)
			return nil
		}
		rows := lo.Map(files, func(f *store.FileRecord, _ int) []string {
			return []string{fmt.Sprintf("%d", f.ID), humanize.IBytes(uint64(f.SizeBytes)), shortenPath(f.Path, pathWidth())}
		})
		fmt.Println(renderTable([]string{"ID", "Size", "Path"}, rows, []columnAlignment{alignRight, alignRight}))
		reclaim := lo.SumBy(files, func(f *store.FileRecord) int64 { return f.SizeBytes })
		util.InfoLog("%d files, %s would be deleted. Run with --execute to delete them.", len(files), humanize.IBytes(uint64(reclaim)))
		return nil
	}

	out, err := resolver.Resolve(cmd.Context(), keepDir, deleteDir)
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}
