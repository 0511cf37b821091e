// Command stservoctl runs the motion controller's HTTP process: it wires
// Session State, the Controller façade, and the JSON API router, then
// serves them on a listen address.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	httpapi "github.com/motioncore/stservoctl/api/http"
	"github.com/motioncore/stservoctl/controller"
	"github.com/motioncore/stservoctl/logging"
	"github.com/motioncore/stservoctl/session"
)

func main() {
	app := &cli.App{
		Name:  "stservoctl",
		Usage: "ST-series multi-servo motion controller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "HTTP listen address",
				Value: ":8080",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug-level logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := logging.NewLogger("stservoctl")
	if c.Bool("debug") {
		logger = logging.NewDebugLogger("stservoctl")
	}

	state := session.New()
	ctrl := controller.New(state, logger)
	srv := httpapi.NewServer(ctrl, logger)

	listen := c.String("listen")
	logger.Infow("listening", "addr", listen)
	return http.ListenAndServe(listen, srv.Router())
}
