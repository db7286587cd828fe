package main

import (
	"flag"
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/matheus3301/wpdl/internal/daemon"
	"github.com/matheus3301/wpdl/internal/session"
)

func main() {
	sessionFlag := flag.String("session", "", "session to activate at startup (overrides config default)")
	configFlag := flag.String("config", "", "config file (default $WPDL_HOME/config.toml)")
	listenFlag := flag.String("listen", "", "UI listen address (overrides config listen_addr)")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	if *sessionFlag != "" {
		if err := session.ValidateID(*sessionFlag); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			Layout:     session.DefaultLayout(),
			ConfigPath: *configFlag,
			Session:    *sessionFlag,
			ListenAddr: *listenFlag,
			Debug:      *debugFlag,
		}),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	app.Run()
}
