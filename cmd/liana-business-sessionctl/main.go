// Command liana-business-sessionctl is the operator-facing CLI: it manages
// the cached sign-in for one network/email and can hold a session open
// long enough to print a snapshot of an organization's wallets. It wraps
// the same session runtime the desktop installer embeds, following the
// teacher daemon's lncli in using urfave/cli for command dispatch.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/table"
	"github.com/urfave/cli"

	"github.com/wizardsardine/liana-business-session/authapi"
	"github.com/wizardsardine/liana-business-session/config"
	"github.com/wizardsardine/liana-business-session/session"
	"github.com/wizardsardine/liana-business-session/tokencache"
)

func main() {
	app := cli.NewApp()
	app.Name = "liana-business-sessionctl"
	app.Usage = "manage and inspect a liana business session"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "network, n", Value: "signet", Usage: "bitcoin or signet"},
		cli.StringFlag{Name: "cache-dir", Value: ".", Usage: "token cache directory"},
	}
	app.Commands = []cli.Command{
		loginCommand,
		logoutCommand,
		accountsCommand,
		statusCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "liana-business-sessionctl: %v\n", err)
		os.Exit(1)
	}
}

func networkFromCtx(ctx *cli.Context) (config.Network, error) {
	n := config.Network(ctx.GlobalString("network"))
	if n != config.Mainnet && n != config.Signet {
		return "", fmt.Errorf("unknown network %q", n)
	}
	return n, nil
}

var loginCommand = cli.Command{
	Name:      "login",
	Usage:     "sign in an email with a one-time code and cache its tokens",
	ArgsUsage: "email",
	Action:    actionDecorator(login),
}

func login(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 1 {
		return cli.ShowCommandHelp(ctx, "login")
	}
	email := args.Get(0)

	network, err := networkFromCtx(ctx)
	if err != nil {
		return err
	}
	cacheDir := ctx.GlobalString("cache-dir")

	desktopCfg, err := authapi.FetchDesktopConfig(network.APIBaseURL())
	if err != nil {
		return fmt.Errorf("fetch desktop config: %w", err)
	}

	client := authapi.NewClient(desktopCfg, email)
	if err := client.SignInOTP(); err != nil {
		return fmt.Errorf("request one-time code: %w", err)
	}

	fmt.Print("enter the one-time code sent to your email: ")
	var code string
	if _, err := fmt.Scanln(&code); err != nil {
		return fmt.Errorf("read code: %w", err)
	}
	code = strings.TrimSpace(code)

	tokens, err := client.VerifyOTP(code)
	if err != nil {
		return fmt.Errorf("verify code: %w", err)
	}

	if _, err := tokencache.Update(cacheDir, network, tokens, client, true); err != nil {
		return fmt.Errorf("cache tokens: %w", err)
	}

	fmt.Printf("signed in as %s on %s\n", email, network)
	return nil
}

var logoutCommand = cli.Command{
	Name:      "logout",
	Usage:     "drop the cached tokens for an email",
	ArgsUsage: "email",
	Action:    actionDecorator(logout),
}

func logout(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 1 {
		return cli.ShowCommandHelp(ctx, "logout")
	}
	email := args.Get(0)

	network, err := networkFromCtx(ctx)
	if err != nil {
		return err
	}
	cacheDir := ctx.GlobalString("cache-dir")

	if err := tokencache.Remove(cacheDir, network, email); err != nil {
		return fmt.Errorf("remove cached tokens: %w", err)
	}
	fmt.Printf("removed cached tokens for %s on %s\n", email, network)
	return nil
}

var accountsCommand = cli.Command{
	Name:   "accounts",
	Usage:  "list the emails with cached tokens for the selected network",
	Action: actionDecorator(accounts),
}

func accounts(ctx *cli.Context) error {
	network, err := networkFromCtx(ctx)
	if err != nil {
		return err
	}
	cacheDir := ctx.GlobalString("cache-dir")

	cache, err := tokencache.FromFile(cacheDir, network)
	if err != nil {
		return fmt.Errorf("read token cache: %w", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Email", "Expired"})
	now := time.Now()
	for _, acc := range cache.Accounts {
		t.AppendRow(table.Row{acc.Email, acc.Tokens.Expired(config.DefaultRefreshThreshold, now)})
	}
	t.Render()
	return nil
}

var statusCommand = cli.Command{
	Name:      "status",
	Usage:     "connect once and print the wallets visible to an account",
	ArgsUsage: "email",
	Flags: []cli.Flag{
		cli.DurationFlag{Name: "timeout", Value: 10 * time.Second, Usage: "how long to wait for the first sync"},
	},
	Action: actionDecorator(status),
}

func status(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 1 {
		return cli.ShowCommandHelp(ctx, "status")
	}
	email := args.Get(0)

	network, err := networkFromCtx(ctx)
	if err != nil {
		return err
	}
	cacheDir := ctx.GlobalString("cache-dir")

	desktopCfg, err := authapi.FetchDesktopConfig(network.APIBaseURL())
	if err != nil {
		return fmt.Errorf("fetch desktop config: %w", err)
	}
	client := authapi.NewClient(desktopCfg, email)

	cfg := config.Config{Network: network, TokenCacheDir: cacheDir}.WithDefaults()
	sess := session.New(cfg, client)
	defer sess.Close()

	sess.Connect(network.WSURL())

	deadline := time.After(ctx.Duration("timeout"))
	for {
		select {
		case n, ok := <-sess.Notifications():
			if !ok {
				return fmt.Errorf("session closed before syncing")
			}
			switch nn := n.(type) {
			case session.ErrorNotice:
				return fmt.Errorf("session error: %+v", nn.Kind)
			case session.WalletUpdated, session.OrgUpdated:
				printSnapshot(sess)
				return nil
			}
		case <-deadline:
			return fmt.Errorf("timed out waiting for the first sync")
		}
	}
}

func printSnapshot(sess *session.Session) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Wallet", "Alias", "Status"})
	for _, w := range sess.Cache().Wallets() {
		t.AppendRow(table.Row{w.ID, w.Alias, w.Status})
	}
	t.Render()
}

// actionDecorator gives every command a uniform cli.ActionFunc signature
// even when the handler needs no extra wrapping today.
func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return f
}
