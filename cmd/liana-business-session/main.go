// Command liana-business-session is a debug harness for the session
// runtime: it signs in if needed, opens one connection, prints every
// notification it receives, and exits on SIGINT. It exists for manual
// testing against a real or test business backend, not for end users.
package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
	flags "github.com/jessevdk/go-flags"

	"github.com/wizardsardine/liana-business-session/authapi"
	"github.com/wizardsardine/liana-business-session/bclog"
	"github.com/wizardsardine/liana-business-session/config"
	"github.com/wizardsardine/liana-business-session/session"
	"github.com/wizardsardine/liana-business-session/tokencache"
)

// options is the debug harness's command-line surface.
type options struct {
	Network    string `short:"n" long:"network" description:"bitcoin or signet" default:"signet"`
	Email      string `short:"e" long:"email" description:"account email" required:"true"`
	CacheDir   string `long:"cache-dir" description:"token cache directory" default:"."`
	LogFile    string `long:"log-file" description:"rotating log file path" default:"liana-business-session.log"`
	DebugLevel string `long:"debuglevel" description:"trace|debug|info|warn|error|critical" default:"info"`
}

func main() {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	logWriter := bclog.NewRotatingLogWriter()
	if err := logWriter.InitLogRotator(opts.LogFile, 3); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init log rotator: %v\n", err)
		os.Exit(1)
	}
	defer logWriter.Close()

	level, ok := parseLevel(opts.DebugLevel)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown debug level %q\n", opts.DebugLevel)
		os.Exit(1)
	}
	bclog.SetupLoggers(logWriter, level)

	network := config.Network(opts.Network)
	if network != config.Mainnet && network != config.Signet {
		fmt.Fprintf(os.Stderr, "unknown network %q\n", opts.Network)
		os.Exit(1)
	}

	desktopCfg, err := authapi.FetchDesktopConfig(network.APIBaseURL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to fetch desktop config: %v\n", err)
		os.Exit(1)
	}

	authClient := authapi.NewClient(desktopCfg, opts.Email)
	if err := ensureSignedIn(authClient, opts.CacheDir, network); err != nil {
		fmt.Fprintf(os.Stderr, "sign-in failed: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Config{Network: network, TokenCacheDir: opts.CacheDir}.WithDefaults()
	sess := session.New(cfg, authClient)
	sess.Connect(network.WSURL())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)

	for {
		select {
		case n, ok := <-sess.Notifications():
			if !ok {
				return
			}
			spew.Dump(n)
		case <-sig:
			sess.Close()
			return
		}
	}
}

// ensureSignedIn skips sign-in entirely if a non-expired token is already
// cached for email; otherwise it runs the interactive OTP flow.
func ensureSignedIn(client *authapi.Client, cacheDir string, network config.Network) error {
	cache, err := tokencache.FromFile(cacheDir, network)
	if err == nil {
		for _, acc := range cache.Accounts {
			if acc.Email == client.Email() && !acc.Tokens.Expired(config.DefaultRefreshThreshold, time.Now()) {
				return nil
			}
		}
	}

	if err := client.SignInOTP(); err != nil {
		return err
	}
	fmt.Print("enter the one-time code sent to your email: ")
	reader := bufio.NewReader(os.Stdin)
	code, _ := reader.ReadString('\n')
	code = trimNewline(code)

	tokens, err := client.VerifyOTP(code)
	if err != nil {
		return err
	}

	_, err = tokencache.Update(cacheDir, network, tokens, client, true)
	return err
}

func parseLevel(s string) (slog.Level, bool) {
	switch s {
	case "trace":
		return slog.LevelTrace, true
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	case "critical":
		return slog.LevelCritical, true
	default:
		return slog.LevelInfo, false
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
