package version

// Version is the current version of snake.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/amkisko/snake/internal/version.Version=v1.0.0'"
var Version = "dev"

// AppID namespaces every room this build joins. Peers running a different
// protocol revision must not meet in the same lobby.
const AppID = "amkisko.github.io/snake/v1"
