package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/franz/dupe-janitor/internal/api"
	"github.com/franz/dupe-janitor/internal/session"
	"github.com/franz/dupe-janitor/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the duplicate finder over HTTP",
	Long: `Start the HTTP API. Scans run as background sessions whose progress
and discovered groups stream over a WebSocket at
/api/scans/{id}/events. Press Ctrl-C to shut down.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8470", "listen address")
	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	events := session.NewChannelSink(64)
	mgr := session.NewManager(&session.Config{
		Engine:        a.engine,
		Sink:          session.MultiSink{events, a.logger},
		Retention:     getDuration(viper.GetViper(), "session.retention", session.DefaultRetention),
		BatchSize:     viper.GetInt("session.batch_size"),
		ProgressEvery: viper.GetInt("session.progress_every"),
	})
	defer mgr.Close()

	srv := api.New(&api.Config{
		Engine:      a.engine,
		Sessions:    mgr,
		Events:      events,
		Planner:     a.planner(),
		Directories: a.directories(),
		Dedupe:      a.dedupe(),
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, viper.GetString("serve.addr")); err != nil {
		return err
	}
	util.InfoLog("Server stopped")
	return nil
}
