package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wabiz/internal/daemon"
	"github.com/matheus3301/wabiz/internal/instance"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	configFlag := flag.String("config", "", "config file (default: the instance's config.toml)")
	listenFlag := flag.String("listen", "", "public listen address (overrides listen_addr)")
	flag.Parse()

	name := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			Instance:   name,
			ConfigPath: *configFlag,
			ListenAddr: *listenFlag,
		}),
	)

	app.Run()
}
