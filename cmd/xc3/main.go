package main

import (
	"log"
	"os"

	flag "github.com/jessevdk/go-flags"
	"go.uber.org/zap"
)

// Options are the command line options shared by every function.
type Options struct {
	Profile     string `short:"p" long:"profile" description:"The AWS profile to use." required:"false" env:"AWS_PROFILE"`
	Region      string `long:"region" description:"The AWS region to use." required:"false" env:"AWS_REGION"`
	Lambda      bool   `short:"l" long:"lambda" description:"Run as an AWS lambda function." required:"false" env:"LAMBDA"`
	Pushgateway string `long:"pushgateway" description:"The Prometheus Pushgateway address." required:"false" env:"PROMETHEUS_IP"`
	Namespace   string `long:"namespace" description:"The XC3 deployment namespace." default:"xc3" env:"NAMESPACE"`
}

var options Options
var logger *zap.Logger

// commandEnv names the sub-command a deployed function runs.
const commandEnv = "XC3_COMMAND"

func newParser() *flag.Parser {
	parser := flag.NewParser(&options, flag.Default)
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, c.short, c.command); err != nil {
			log.Fatalf("can't register command %s: %v", c.name, err)
		}
	}
	return parser
}

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logger.Sync() // nolint: errcheck

	args := os.Args[1:]
	if name := os.Getenv(commandEnv); name != "" && len(args) == 0 {
		args = []string{name}
	}

	parser := newParser()
	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flag.Error); ok && flagsErr.Type == flag.ErrHelp {
			return
		}
		logger.Fatal("command failed", zap.Error(err))
	}
}
