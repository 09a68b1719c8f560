package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

var cmdLogin = &cli.Command{
	Name:   "login",
	Usage:  "create a new session with username and password, and store it",
	Action: runLogin,
}

var cmdLogout = &cli.Command{
	Name:   "logout",
	Usage:  "delete any stored session for the account",
	Action: runLogout,
}

var cmdStatus = &cli.Command{
	Name:   "status",
	Usage:  "show the stored session for the account",
	Action: runStatus,
}

func runLogin(cctx *cli.Context) error {
	ctx := context.Background()

	c, _, err := loadClient(ctx, cctx, passwordAlways)
	if err != nil {
		return err
	}
	if err := c.Login(ctx); err != nil {
		return err
	}
	cred, _ := c.Credential()
	fmt.Fprintf(cctx.App.Writer, "logged in as %s (session expires %s)\n", c.AccountID(), cred.ExpiresAt().Format(time.RFC3339))
	return nil
}

func runLogout(cctx *cli.Context) error {
	ctx := context.Background()

	c, store, err := loadClient(ctx, cctx, passwordNever)
	if err != nil {
		return err
	}
	return store.Delete(ctx, c.AccountID())
}

func runStatus(cctx *cli.Context) error {
	ctx := context.Background()

	c, _, err := loadClient(ctx, cctx, passwordNever)
	if err != nil {
		return err
	}
	cred, ok := c.Credential()
	if !ok {
		fmt.Fprintf(cctx.App.Writer, "%s: not logged in\n", c.AccountID())
		return nil
	}
	state := "valid"
	if cred.IsExpired() {
		state = "expired (will refresh on next request)"
	}
	fmt.Fprintf(cctx.App.Writer, "account: %s\n", c.AccountID())
	fmt.Fprintf(cctx.App.Writer, "endpoint: %s\n", c.BaseEndpoint())
	fmt.Fprintf(cctx.App.Writer, "access token: %s (expires %s)\n", state, cred.ExpiresAt().Format(time.RFC3339))
	return nil
}
