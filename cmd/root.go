package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"rag-chatbot/internal/config"
	"rag-chatbot/internal/logger"
)

const rootLongDesc string = `RAG Chatbot answers questions about your documents.

Run it using:
  rag-chatbot serve                 Run the HTTP API
  rag-chatbot ingest <files...>     Add documents to the vector store
  rag-chatbot ask <question>        Ask a question from the terminal
  rag-chatbot config                Print the effective configuration`

const rootShortDesc string = "RAG Chatbot - document question answering"

// rootCommander holds what every subcommand needs after flags are parsed.
type rootCommander struct {
	configPath string
	debug      bool

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCmd() *cobra.Command {
	cmder := &rootCommander{}

	cmd := &cobra.Command{
		Use:           "rag-chatbot",
		Short:         rootShortDesc,
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return cmder.load()
		},
	}

	cmd.PersistentFlags().StringVarP(&cmder.configPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&cmder.debug, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd(cmder))
	cmd.AddCommand(newIngestCmd(cmder))
	cmd.AddCommand(newAskCmd(cmder))
	cmd.AddCommand(newConfigCmd(cmder))

	return cmd
}

// load reads the configuration and installs the global logger. Logs go to
// stderr so command output on stdout stays clean.
func (c *rootCommander) load() error {
	cfg, err := config.LoadConfig(c.configPath)
	if err != nil {
		return err
	}
	if c.debug {
		cfg.Debug = true
	}
	c.cfg = cfg

	c.logger = logger.New(
		logger.WithDebug(cfg.Debug),
		logger.WithJSON(cfg.LogJSON),
		logger.WithWriter(os.Stderr),
	)
	log.Logger = c.logger
	c.logger.Debug().Str("environment", cfg.Environment).Msg("Loaded config")
	return nil
}

func newConfigCmd(root *rootCommander) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out, err := root.cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}
