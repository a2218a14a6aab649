package cli

import (
	"time"

	"github.com/google/uuid"
	"github.com/natserract/amocrm/pkg/oauth"
	"github.com/spf13/cobra"
)

type sessionInfo struct {
	Status    string    `json:"status"`
	TokenType string    `json:"token_type,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

func newSessionInfo(ts oauth.TokenSet) sessionInfo {
	return sessionInfo{
		Status:    oauth.StateFresh.String(),
		TokenType: ts.TokenType,
		ExpiresAt: ts.ExpiresAt().UTC(),
	}
}

func newAuthURLCommand(s *session) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "auth-url",
		Short: "Print the consent page URL",
		Long:  `Print the amoCRM consent page URL. Open it in a browser and pass the returned code to "amocrm login".`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if state == "" {
				state = uuid.NewString()
			}
			return printJSON(s.out(cmd), map[string]string{
				"url":   s.client.AuthorizationURL(state),
				"state": state,
			})
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "OAuth state value (random when empty)")
	return cmd
}

func newLoginCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "login <code>",
		Short: "Exchange an authorization code and store the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := s.client.Login(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(s.out(cmd), newSessionInfo(ts))
		},
	}
}

func newRefreshCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := s.client.RefreshSession(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(s.out(cmd), newSessionInfo(ts))
		},
	}
}

func newLogoutCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.client.Logout(cmd.Context()); err != nil {
				return err
			}
			return printJSON(s.out(cmd), sessionInfo{Status: oauth.StateUnauthenticated.String()})
		},
	}
}

func newStatusCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := s.client.SessionState(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(s.out(cmd), sessionInfo{Status: state.String()})
		},
	}
}
