package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/amkisko/snake/internal/ui"
	"github.com/amkisko/snake/internal/version"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "snake",
	Short: "Peer-to-peer multiplayer toy game in the terminal, over WebRTC",
	Long: `Snake puts everyone who joins the same lobby on one shared stage. Peers find
each other through a small websocket relay, then talk directly over WebRTC
data channels. Two players in a lobby agree on who hosts a game room, and the
rest are invited into it.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
