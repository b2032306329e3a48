package cmd

import (
	"github.com/amkisko/snake/internal/config"
	"github.com/amkisko/snake/internal/logging"
	"github.com/amkisko/snake/internal/server"
	"github.com/spf13/cobra"
)

var serverCfg config.Server

var signalCmd = &cobra.Command{
	Use:   "signal",
	Short: "Run the signaling relay",
	Long: `Run the websocket relay peers use to find each other. It forwards WebRTC
offers, answers and ICE candidates between peers of the same room and holds
no game state.

Examples:
  snake signal
  snake signal --port 9000 --max-peers 4
  snake signal --domain snake.example.com --tls-cert cert.pem --tls-key key.pem`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		config.BindEnv(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		level := ""
		if serverCfg.Verbose {
			level = "debug"
		}
		logging.Init(level, nil)
		return server.Serve(cmd.Context(), &serverCfg)
	},
}

func init() {
	rootCmd.AddCommand(signalCmd)

	flags := signalCmd.Flags()
	flags.StringVarP(&serverCfg.Bind, "bind", "b", "", "Address to bind to (default all interfaces)")
	flags.IntVarP(&serverCfg.Port, "port", "p", 8080, "Port to listen on")
	flags.IntVar(&serverCfg.MaxPeers, "max-peers", 8, "Maximum peers per room")
	flags.StringVar(&serverCfg.Prefix, "prefix", "", "Path prefix for every route")
	flags.StringVar(&serverCfg.Domain, "domain", "", "Public host[:port] used in room links (default request host)")
	flags.BoolVar(&serverCfg.Profile, "profile", false, "Expose pprof handlers")
	flags.StringVar(&serverCfg.TLSCert, "tls-cert", "", "TLS certificate file")
	flags.StringVar(&serverCfg.TLSKey, "tls-key", "", "TLS key file")
	flags.BoolVarP(&serverCfg.Verbose, "verbose", "v", false, "Log every relayed message")

}
