package main

import (
	"fmt"
	"strings"

	"github.com/franz/dupe-janitor/internal/store"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/spf13/cobra"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Act on individual library files",
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <file-id>...",
	Short: "Delete files from disk and from the library",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFilesDelete,
}

var filesKeepCmd = &cobra.Command{
	Use:   "keep <keep-id> <member-id>...",
	Short: "Keep one file of a group and delete the other members",
	Long: `Keep the first file and delete every other listed file. The kept file
may be repeated among the members. All ids are checked before anything is
deleted.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runFilesKeep,
}

var filesEditCmd = &cobra.Command{
	Use:   "edit <file-id>...",
	Short: "Set tags on one or more files in the library",
	Long: `Update stored tags for the listed files. Only the flags given are
changed; pass an empty value (e.g. --album "") to clear a text field.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFilesEdit,
}

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesDeleteCmd, filesKeepCmd, filesEditCmd)

	filesEditCmd.Flags().String("title", "", "track title")
	filesEditCmd.Flags().String("artist", "", "artist")
	filesEditCmd.Flags().String("album", "", "album")
	filesEditCmd.Flags().String("genre", "", "genre")
	filesEditCmd.Flags().Int("track", 0, "track number (0 clears it)")
	filesEditCmd.Flags().Int("year", 0, "year (0 clears it)")
}

func runFilesDelete(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	svc := a.dedupe()
	var failed []string
	for _, id := range ids {
		if err := svc.DeleteFile(id); err != nil {
			util.ErrorLog("File %d: %v", id, err)
			failed = append(failed, fmt.Sprintf("%d", id))
			continue
		}
		util.SuccessLog("Deleted file %d", id)
	}
	if len(failed) > 0 {
		return fmt.Errorf("failed to delete files %s", strings.Join(failed, ", "))
	}
	return nil
}

func runFilesKeep(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.dedupe().KeepOne(ids[0], ids)
	if err != nil {
		return err
	}
	util.SuccessLog("Kept file %d, deleted %d files", res.Kept, len(res.Deleted))
	if len(res.Failed) > 0 {
		return fmt.Errorf("failed to delete files %v", res.Failed)
	}
	return nil
}

func runFilesEdit(cmd *cobra.Command, args []string) error {
	ids, err := parseIDs(args)
	if err != nil {
		return err
	}
	edit := metadataEditFromFlags(cmd)

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.dedupe().UpdateMetadata(ids, edit)
	if err != nil {
		return err
	}
	util.SuccessLog("Updated %d files", n)
	return nil
}

// metadataEditFromFlags sets only the fields whose flags were given
func metadataEditFromFlags(cmd *cobra.Command) store.MetadataEdit {
	var edit store.MetadataEdit
	flags := cmd.Flags()

	text := func(name string) *string {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetString(name)
		return &v
	}
	number := func(name string) *int {
		if !flags.Changed(name) {
			return nil
		}
		v, _ := flags.GetInt(name)
		return &v
	}

	edit.Title = text("title")
	edit.Artist = text("artist")
	edit.Album = text("album")
	edit.Genre = text("genre")
	edit.TrackNumber = number("track")
	edit.Year = number("year")
	return edit
}
