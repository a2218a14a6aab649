package cli

import (
	"fmt"

	"github.com/natserract/amocrm/pkg/amocrm"
	"github.com/spf13/cobra"
)

func newAccountCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "account",
		Short: "Show the account of the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := s.client.Account(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(s.out(cmd), account)
		},
	}
}

func newFieldsCommand(s *session) *cobra.Command {
	return &cobra.Command{
		Use:       "fields <contacts|leads>",
		Short:     "List custom fields of contacts or leads",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(amocrm.KindContacts), string(amocrm.KindLeads)},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				fields []amocrm.CustomField
				err    error
			)
			switch amocrm.EntityKind(args[0]) {
			case amocrm.KindContacts:
				fields, err = s.client.ContactFields(cmd.Context())
			case amocrm.KindLeads:
				fields, err = s.client.LeadFields(cmd.Context())
			}
			if err != nil {
				return err
			}
			return printJSON(s.out(cmd), fields)
		},
	}
}

func newListCommand(s *session) *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:       "list <contacts|leads>",
		Short:     "List contacts or leads",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(amocrm.KindContacts), string(amocrm.KindLeads)},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch amocrm.EntityKind(args[0]) {
			case amocrm.KindContacts:
				contacts, err := s.client.Contacts(cmd.Context(), page, limit)
				if err != nil {
					return err
				}
				return printJSON(s.out(cmd), contacts)
			case amocrm.KindLeads:
				leads, err := s.client.Leads(cmd.Context(), page, limit)
				if err != nil {
					return err
				}
				return printJSON(s.out(cmd), leads)
			}
			return fmt.Errorf("unknown entity %q", args[0])
		},
	}

	cmd.Flags().IntVar(&page, "page", amocrm.DefaultPage, "Page number")
	cmd.Flags().IntVar(&limit, "limit", amocrm.DefaultLimit, "Page size")
	return cmd
}
