// Package cli implements the amocrm command line tool.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/natserract/amocrm/pkg/amocrm"
	"github.com/natserract/amocrm/pkg/config"
	"github.com/natserract/amocrm/pkg/logging"
	"github.com/natserract/amocrm/pkg/oauth"
	"github.com/natserract/amocrm/pkg/tokenstore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// ClientFactory opens a client for one command run. The returned function
// releases its resources.
type ClientFactory func(cmd *cobra.Command, debug bool) (amocrm.CRMClient, func(), error)

// session is shared by all subcommands of one invocation.
type session struct {
	open    ClientFactory
	client  amocrm.CRMClient
	release func()
}

func (s *session) out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}

// close releases the client opened for the run, if any.
func (s *session) close() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

func newRootCommand(open ClientFactory) (*cobra.Command, *session) {
	s := &session{open: open}

	rootCmd := &cobra.Command{
		Use:   "amocrm",
		Short: "amoCRM API client",
		Long: `amocrm authorizes against an amoCRM account over OAuth2 and reads or creates
contacts and leads. Configuration is read from the environment and an optional .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			client, release, err := s.open(cmd, debug)
			if err != nil {
				return err
			}
			s.client = client
			s.release = release
			return nil
		},
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newAuthURLCommand(s))
	rootCmd.AddCommand(newLoginCommand(s))
	rootCmd.AddCommand(newRefreshCommand(s))
	rootCmd.AddCommand(newLogoutCommand(s))
	rootCmd.AddCommand(newStatusCommand(s))
	rootCmd.AddCommand(newAccountCommand(s))
	rootCmd.AddCommand(newFieldsCommand(s))
	rootCmd.AddCommand(newListCommand(s))
	rootCmd.AddCommand(newCreateContactCommand(s))
	rootCmd.AddCommand(newCreateLeadCommand(s))

	return rootCmd, s
}

// Execute runs the root command
func Execute() {
	rootCmd, s := newRootCommand(openClient)
	err := rootCmd.Execute()
	s.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openClient(cmd *cobra.Command, debug bool) (amocrm.CRMClient, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.Options{File: cfg.ErrorLog, Debug: debug})

	store, err := tokenstore.Open(cmd.Context(), cfg, logger)
	if err != nil {
		logger.Error("Failed to open token store", zap.String("store", cfg.TokenStore), zap.Error(err))
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("failed to open token store: %w", err)
	}

	client := amocrm.NewClientWithLogger(oauth.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI,
		BaseDomain:   cfg.BaseDomain,
	}, store, logger)

	release := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close token store", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return client, release, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
