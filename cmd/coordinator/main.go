package main

import (
	"github.com/protocol-laboratory/group-coordinator-go/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &commonFlags{}
	root := &cobra.Command{
		Use:          "group-coordinator",
		Short:        "Kafka style group coordinator backed by a replayable log",
		SilenceUsage: true,
	}
	flags.register(root)
	root.AddCommand(newServeCommand(flags), newDumpCommand(flags))
	return root
}

func newLogger(level string) (log.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetLevel(lvl)
	return log.NewLoggerWithLogrus(logger, &logrus.TextFormatter{FullTimestamp: true}), nil
}
