package cmd

import (
	"context"
	"fmt"

	"github.com/amkisko/snake/internal/app"
	"github.com/amkisko/snake/internal/config"
	"github.com/amkisko/snake/internal/game"
	"github.com/amkisko/snake/internal/logging"
	"github.com/amkisko/snake/internal/ui"
	"github.com/spf13/cobra"
)

var (
	flagDomain   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagRoom     string
	flagPrivate  bool
	flagLogLevel string
)

var playCmd = &cobra.Command{
	Use:     "play",
	Aliases: []string{"p"},
	Short:   "Join a lobby and play",
	Long: `Join a lobby and play with everyone in it.

Examples:
  snake play
  snake play --room game#main#1
  snake play --private
  snake play --domain snake.example.com --relay`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		config.BindEnv(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return play(cmd.Context())
	},
}

func play(ctx context.Context) error {
	cfg, err := LoadConfig(config.Options{
		Domain:     flagDomain,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	})
	if err != nil {
		return err
	}

	var session *app.Application
	stage := ui.NewStage(ui.Handlers{
		Self:     func() game.Player { return session.Game().Self() },
		Players:  func() []game.Player { return session.Game().Players() },
		SetAccel: func(v game.Vec) { session.SetAccel(v) },
		Say:      func(text string) { session.SendLog(text) },
	})
	restoreLogs := stageLogging(flagLogLevel, stage)
	defer restoreLogs()

	session = app.New(cfg, app.Options{
		Lobby:    flagRoom,
		Private:  flagPrivate,
		Emoji:    game.RandomEmoji(),
		View:     stage,
		OnStatus: stage.SetStatus,
	})

	stopSpinner := ui.RunConnectionSpinner("Joining lobby...")
	err = session.Join(ctx)
	stopSpinner()
	if err != nil {
		return err
	}

	if flagPrivate {
		fmt.Println(ui.RoomInfoView(session.Lobby(), cfg.GetRoomLink(session.Lobby())))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- session.Run(ctx)
	}()

	uiErr := stage.Run(ctx)
	cancel()
	restoreLogs()

	stopSpinner = ui.RunSpinner("Leaving rooms...")
	runErr := <-done
	stopSpinner()

	if uiErr != nil {
		return fmt.Errorf("stage: %w", uiErr)
	}
	if runErr != nil {
		return runErr
	}

	fmt.Println()
	ui.RenderSummary(session.Summary())
	return nil
}

// stageLogging shows log records in the stage pane until the returned func
// puts them back on stderr.
func stageLogging(level string, stage *ui.Stage) func() {
	logging.Init(level, stage.LogWriter())
	return func() {
		logging.Init(level, nil)
	}
}

func init() {
	rootCmd.AddCommand(playCmd)

	flags := playCmd.Flags()
	flags.StringVarP(&flagDomain, "domain", "d", "", "Signaling relay host[:port] (default \""+config.DefaultDomain+"\")")
	flags.StringVar(&flagSTUN, "stun", "", "STUN server URL")
	flags.StringVar(&flagTURN, "turn", "", "TURN server URL")
	flags.StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	flags.StringVar(&flagTURNPass, "turn-pass", "", "TURN password")
	flags.BoolVar(&flagRelay, "relay", false, "Force TURN relay for all connections")
	flags.StringVarP(&flagRoom, "room", "r", "", "Lobby to join (default: next lobby in the main sequence)")
	flags.BoolVar(&flagPrivate, "private", false, "Open a fresh lobby with a generated name")
	flags.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn or error (default from LOG_LEVEL)")
	playCmd.MarkFlagsMutuallyExclusive("room", "private")

}
