package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/onetoweb/mybusiness-go/client"
	"github.com/onetoweb/mybusiness-go/util/cliutil"

	_ "github.com/joho/godotenv/autoload"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

// Non-success API responses are printed as the status code and the raw response body, which is usually a JSON error payload.
func printError(w io.Writer, err error) {
	var reqErr *client.RequestError
	if errors.As(err, &reqErr) {
		fmt.Fprintf(w, "HTTP %d: %s\n", reqErr.StatusCode, reqErr.Message)
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

var globalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "host",
		Usage:   "MyBusiness hostname (eg, example.mybusiness.nl), or full API base URL",
		EnvVars: []string{"MYBUSINESS_HOST"},
	},
	&cli.StringFlag{
		Name:    "username",
		Aliases: []string{"u"},
		Usage:   "account username",
		EnvVars: []string{"MYBUSINESS_USERNAME"},
	},
	&cli.StringFlag{
		Name:    "password",
		Usage:   "account password (prompted for if needed and not set)",
		EnvVars: []string{"MYBUSINESS_PASSWORD"},
	},
	&cli.StringFlag{
		Name:    "session-store",
		Usage:   "where to keep session credentials: file, memory, redis://..., sqlite://... or postgres://...",
		Value:   "file",
		EnvVars: []string{"MYBUSINESS_SESSION_STORE"},
	},
	&cli.DurationFlag{
		Name:  "timeout",
		Usage: "timeout for each HTTP request",
		Value: 30 * time.Second,
	},
	&cli.IntFlag{
		Name:  "retries",
		Usage: "retry failed HTTP requests (connection errors and 5xx responses) this many times",
		Value: 0,
	},
	&cli.Float64Flag{
		Name:  "rate-limit",
		Usage: "maximum HTTP requests per second (0 for no limit)",
		Value: 0,
	},
	&cli.StringFlag{
		Name:    "log-level",
		Usage:   "log verbosity level (eg: warn, info, debug)",
		Value:   "warn",
		EnvVars: []string{"MBLOG_LOG_LEVEL", "LOG_LEVEL"},
	},
	&cli.StringFlag{
		Name:    "log-format",
		Usage:   "log output format: text or json",
		Value:   "text",
		EnvVars: []string{"MBLOG_LOG_FMT"},
	},
	&cli.StringFlag{
		Name:  "metrics-file",
		Usage: "write client metrics to this file (prometheus text format) on exit",
	},
}

func run(args []string) error {
	return newApp().Run(args)
}

func newApp() *cli.App {

	var shutdownOTEL func(context.Context) error

	app := &cli.App{
		Name:    "mbclient",
		Usage:   "command-line client for the MyBusiness REST API",
		Version: versioninfo.Short(),
		Flags:   globalFlags,
	}
	app.Before = func(cctx *cli.Context) error {
		_, err := cliutil.SetupSlog(cliutil.LogOptions{
			LogLevel:  cctx.String("log-level"),
			LogFormat: cctx.String("log-format"),
		})
		if err != nil {
			return err
		}
		shutdownOTEL, err = cliutil.SetupOTEL(cctx.Context, "mbclient")
		return err
	}
	app.After = func(cctx *cli.Context) error {
		if shutdownOTEL != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOTEL(ctx); err != nil {
				slog.Error("failed to shutdown trace exporter", "err", err)
			}
		}
		if p := cctx.String("metrics-file"); p != "" {
			return prometheus.WriteToTextfile(p, prometheus.DefaultGatherer)
		}
		return nil
	}
	app.Commands = []*cli.Command{
		cmdLogin,
		cmdLogout,
		cmdStatus,
		cmdGet,
		cmdPost,
		cmdDelete,
	}
	return app
}
