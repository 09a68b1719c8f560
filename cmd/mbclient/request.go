package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"
)

var cmdGet = &cli.Command{
	Name:      "get",
	Usage:     "send a GET request to an API endpoint",
	ArgsUsage: "<endpoint> [paramKey=paramValue...]",
	Action: func(cctx *cli.Context) error {
		return runRequest(cctx, http.MethodGet)
	},
}

var cmdPost = &cli.Command{
	Name:      "post",
	Usage:     "send a POST request to an API endpoint, with a JSON object body",
	ArgsUsage: "<endpoint> [paramKey=paramValue...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "data",
			Aliases: []string{"d"},
			Usage:   "JSON object request body (default: read from stdin, if not a terminal)",
		},
	},
	Action: func(cctx *cli.Context) error {
		return runRequest(cctx, http.MethodPost)
	},
}

var cmdDelete = &cli.Command{
	Name:      "delete",
	Usage:     "send a DELETE request to an API endpoint",
	ArgsUsage: "<endpoint> [paramKey=paramValue...]",
	Action: func(cctx *cli.Context) error {
		return runRequest(cctx, http.MethodDelete)
	},
}

func readBody(cctx *cli.Context) (map[string]any, error) {
	var raw []byte
	if d := cctx.String("data"); d != "" {
		raw = []byte(d)
	} else if !stdinIsTerminal() {
		var err error
		raw, err = io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("could not read input: %w", err)
		}
	}
	return parseBody(raw)
}

func runRequest(cctx *cli.Context, method string) error {
	ctx := context.Background()

	endpoint := cctx.Args().First()
	if endpoint == "" {
		return fmt.Errorf("need to provide endpoint as argument")
	}
	query, err := parseQueryArgs(cctx.Args().Tail())
	if err != nil {
		return err
	}

	var body map[string]any
	if method == http.MethodPost {
		body, err = readBody(cctx)
		if err != nil {
			return err
		}
	}

	c, _, err := loadClient(ctx, cctx, passwordWithoutSession)
	if err != nil {
		return err
	}

	var out any
	switch method {
	case http.MethodGet:
		out, err = c.Get(ctx, endpoint, query)
	case http.MethodPost:
		out, err = c.Post(ctx, endpoint, body, query)
	case http.MethodDelete:
		out, err = c.Delete(ctx, endpoint, query)
	default:
		return fmt.Errorf("unsupported method: %s", method)
	}
	if err != nil {
		return err
	}
	return printJSON(cctx.App.Writer, out)
}
