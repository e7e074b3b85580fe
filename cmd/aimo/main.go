// Package main defines the aimo command line binary. An aimo node routes
// OpenAI compatible completion requests from authenticated clients to
// subscribed inference providers; the same binary also generates secret keys
// and runs the provider side proxy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	joonix "github.com/joonix/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/aimo-network/aimo/cmd/aimo/flags"
	"github.com/aimo-network/aimo/io/logs"
	"github.com/aimo-network/aimo/keys"
	"github.com/aimo-network/aimo/node"
	"github.com/aimo-network/aimo/proxy"
	"github.com/aimo-network/aimo/runtime/version"
)

var log = logrus.WithField("prefix", "main")

var appFlags = []cli.Flag{
	flags.VerbosityFlag,
	flags.LogFormat,
	flags.LogFileName,
	flags.ConfigFileFlag,
}

func main() {
	app := cli.App{}
	app.Name = "aimo"
	app.Usage = "launches a decentralized inference routing node, or one of its companion tools"
	app.Version = version.Version()
	app.Flags = appFlags
	app.Commands = []*cli.Command{
		{
			Name:  "serve",
			Usage: "run an aimo node and serve its HTTP API",
			Flags: []cli.Flag{
				flags.HTTPHostFlag,
				flags.HTTPPortFlag,
				flags.CorsDomainFlag,
				flags.DataDirFlag,
			},
			Action: startNode,
		},
		{
			Name:  "keygen",
			Usage: "generate and print a signed secret key",
			Flags: []cli.Flag{
				flags.KeyTagFlag,
				flags.KeyValidForFlag,
				flags.KeyScopesFlag,
				flags.KeyUsageLimitFlag,
				flags.WalletKeypairFlag,
			},
			Action: generateKey,
		},
		{
			Name:  "proxy",
			Usage: "subscribe to a node as a provider and serve completions from a local endpoint",
			Flags: []cli.Flag{
				flags.NodeURLFlag,
				flags.SecretKeyFlag,
				flags.EndpointURLFlag,
				flags.APIKeyFlag,
			},
			Action: startProxy,
		},
	}

	app.Before = func(ctx *cli.Context) error {
		// Load any flags from file, if specified.
		if ctx.IsSet(flags.ConfigFileFlag.Name) {
			if err := altsrc.InitInputSourceWithContext(
				appFlags,
				altsrc.NewYamlSourceFromFlagFunc(flags.ConfigFileFlag.Name))(ctx); err != nil {
				return err
			}
		}

		verbosity := ctx.String(flags.VerbosityFlag.Name)
		level, err := logrus.ParseLevel(verbosity)
		if err != nil {
			return err
		}
		logrus.SetLevel(level)

		format := ctx.String(flags.LogFormat.Name)
		switch format {
		case "text":
			formatter := new(prefixed.TextFormatter)
			formatter.TimestampFormat = "2006-01-02 15:04:05"
			formatter.FullTimestamp = true
			// Colors are ANSI codes and read as gibberish in log files.
			formatter.DisableColors = ctx.String(flags.LogFileName.Name) != ""
			logrus.SetFormatter(formatter)
		case "fluentd":
			logrus.SetFormatter(joonix.NewFormatter())
		case "json":
			logrus.SetFormatter(&logrus.JSONFormatter{})
		default:
			return fmt.Errorf("unknown log format %s", format)
		}

		logFileName := ctx.String(flags.LogFileName.Name)
		if logFileName != "" {
			if err := logs.ConfigurePersistentLogging(logFileName, format); err != nil {
				log.WithError(err).Error("Failed to configure logging to disk")
			}
		}

		runtime.GOMAXPROCS(runtime.NumCPU())
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}

func startNode(cliCtx *cli.Context) error {
	n, err := node.New(cliCtx)
	if err != nil {
		return err
	}
	n.Start()
	return nil
}

func generateKey(cliCtx *cli.Context) error {
	scopes := make([]keys.Scope, 0)
	for _, raw := range cliCtx.StringSlice(flags.KeyScopesFlag.Name) {
		scope, err := keys.ParseScope(raw)
		if err != nil {
			return err
		}
		scopes = append(scopes, scope)
	}
	encoded, err := keys.Generate(
		cliCtx.String(flags.KeyTagFlag.Name),
		cliCtx.Uint(flags.KeyValidForFlag.Name),
		scopes,
		cliCtx.Uint64(flags.KeyUsageLimitFlag.Name),
		cliCtx.String(flags.WalletKeypairFlag.Name),
	)
	if err != nil {
		return err
	}
	// The key goes to stdout on purpose, it belongs to the caller.
	fmt.Println(encoded)
	return nil
}

func startProxy(cliCtx *cli.Context) error {
	s, err := proxy.New(context.Background(), &proxy.Config{
		NodeURL:     cliCtx.String(flags.NodeURLFlag.Name),
		SecretKey:   cliCtx.String(flags.SecretKeyFlag.Name),
		EndpointURL: cliCtx.String(flags.EndpointURLFlag.Name),
		APIKey:      cliCtx.String(flags.APIKeyFlag.Name),
	})
	if err != nil {
		return err
	}
	s.Start()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	<-sigc
	log.Info("Got interrupt, shutting down...")
	return s.Stop()
}
