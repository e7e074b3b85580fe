// Package flags defines the command line flags understood by the aimo
// binary.
package flags

import (
	"github.com/urfave/cli/v2"
)

var (
	// VerbosityFlag defines the logrus configuration.
	VerbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity (trace, debug, info, warn, error, fatal, panic)",
		Value: "info",
	}
	// LogFormat specifies the log output encoding.
	LogFormat = &cli.StringFlag{
		Name:  "log-format",
		Usage: "Specify log formatting. Supports: text, json, fluentd",
		Value: "text",
	}
	// LogFileName specifies a file to write logs to in addition to stdout.
	LogFileName = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Specify log file name, relative or absolute",
	}
	// ConfigFileFlag loads flag values from a YAML file.
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config-file",
		Usage: "The filepath to a yaml file with flag values",
	}
	// DataDirFlag holds the node's revocation database.
	DataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Data directory for the key revocation database",
	}
	// HTTPHostFlag is the address the API server binds to.
	HTTPHostFlag = &cli.StringFlag{
		Name:  "address",
		Usage: "Host address the API server listens on",
		Value: "0.0.0.0",
	}
	// HTTPPortFlag is the port the API server binds to.
	HTTPPortFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Port the API server listens on",
		Value: 8000,
	}
	// CorsDomainFlag is a comma separated list of origins admitted by the
	// API server.
	CorsDomainFlag = &cli.StringFlag{
		Name:  "http-cors-domain",
		Usage: "Comma separated list of domains from which to accept cross origin requests",
		Value: "*",
	}
	// WalletKeypairFlag points at a Solana id.json keypair file.
	WalletKeypairFlag = &cli.StringFlag{
		Name:  "id",
		Usage: "Path to a Solana keypair file as written by solana-keygen, defaults to ~/.config/solana/id.json",
	}
	// KeyTagFlag is the scope tag embedded in the key envelope.
	KeyTagFlag = &cli.StringFlag{
		Name:  "tag",
		Usage: "Scope tag to stamp on the key envelope",
		Value: "dev",
	}
	// KeyValidForFlag is the key lifetime in days.
	KeyValidForFlag = &cli.UintFlag{
		Name:  "valid-for",
		Usage: "Number of days the key stays valid",
		Value: 90,
	}
	// KeyScopesFlag lists the capability scopes granted to the key.
	KeyScopesFlag = &cli.StringSliceFlag{
		Name:  "scopes",
		Usage: "Capability scopes granted to the key",
		Value: cli.NewStringSlice("completion_model"),
	}
	// KeyUsageLimitFlag caps how often the key may be used, 0 meaning
	// unlimited.
	KeyUsageLimitFlag = &cli.Uint64Flag{
		Name:  "usage-limit",
		Usage: "Maximum number of uses for the key, 0 for unlimited",
		Value: 0,
	}
	// NodeURLFlag is the base URL of the aimo node a proxy subscribes to.
	NodeURLFlag = &cli.StringFlag{
		Name:  "node-url",
		Usage: "Base URL of the aimo node to subscribe to",
		Value: "http://127.0.0.1:8000",
	}
	// SecretKeyFlag is the provider's encoded secret key.
	SecretKeyFlag = &cli.StringFlag{
		Name:  "secret-key",
		Usage: "Encoded secret key authenticating the provider",
	}
	// EndpointURLFlag is the local OpenAI compatible endpoint the proxy
	// forwards completions to.
	EndpointURLFlag = &cli.StringFlag{
		Name:  "endpoint-url",
		Usage: "Base URL of the local OpenAI compatible endpoint",
		Value: "http://127.0.0.1:11434",
	}
	// APIKeyFlag authenticates the proxy against its local endpoint.
	APIKeyFlag = &cli.StringFlag{
		Name:  "api-key",
		Usage: "API key forwarded to the local endpoint, if it needs one",
	}
)
