package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/natserract/amocrm/pkg/amocrm"
	"github.com/spf13/cobra"
)

func newCreateContactCommand(s *session) *cobra.Command {
	var (
		firstName string
		lastName  string
		fieldArgs []string
	)

	cmd := &cobra.Command{
		Use:   "create-contact",
		Short: "Create a contact",
		Long: `Create a contact. Custom fields are given as --field <id>=<value> and are sent as
strings; values rejected for their type are converted and resubmitted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fields, err := fieldsFor(ctx, fieldArgs, s.client.ContactFields)
			if err != nil {
				return err
			}

			form := map[string]string{
				"first_name": firstName,
				"last_name":  lastName,
			}
			if err := addFieldInputs(form, fieldArgs, fields, amocrm.ContactFieldPrefix); err != nil {
				return err
			}

			created, err := s.client.CreateContact(ctx, amocrm.NewContactFromForm(form, fields))
			if err != nil {
				return err
			}
			return printJSON(s.out(cmd), created)
		},
	}

	cmd.Flags().StringVar(&firstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&lastName, "last-name", "", "Last name")
	cmd.Flags().StringArrayVar(&fieldArgs, "field", nil, "Custom field value as id=value (repeatable)")
	_ = cmd.MarkFlagRequired("first-name")
	return cmd
}

func newCreateLeadCommand(s *session) *cobra.Command {
	var (
		name      string
		price     int64
		fieldArgs []string
	)

	cmd := &cobra.Command{
		Use:   "create-lead",
		Short: "Create a lead",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			fields, err := fieldsFor(ctx, fieldArgs, s.client.LeadFields)
			if err != nil {
				return err
			}

			form := map[string]string{"lead_name": name}
			if err := addFieldInputs(form, fieldArgs, fields, amocrm.LeadFieldPrefix); err != nil {
				return err
			}

			lead := amocrm.NewLeadFromForm(form, fields)
			lead.Price = price

			created, err := s.client.CreateLead(ctx, lead)
			if err != nil {
				return err
			}
			return printJSON(s.out(cmd), created)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Lead name")
	cmd.Flags().Int64Var(&price, "price", 0, "Lead price")
	cmd.Flags().StringArrayVar(&fieldArgs, "field", nil, "Custom field value as id=value (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// fieldsFor skips the metadata request when no custom fields are given.
func fieldsFor(ctx context.Context, fieldArgs []string, fetch func(context.Context) ([]amocrm.CustomField, error)) ([]amocrm.CustomField, error) {
	if len(fieldArgs) == 0 {
		return nil, nil
	}
	return fetch(ctx)
}

// addFieldInputs parses id=value pairs into form inputs named prefix+id.
// Ids must belong to fields.
func addFieldInputs(form map[string]string, fieldArgs []string, fields []amocrm.CustomField, prefix string) error {
	known := make(map[int64]bool, len(fields))
	for _, f := range fields {
		known[f.ID] = true
	}

	for _, arg := range fieldArgs {
		idText, value, ok := strings.Cut(arg, "=")
		if !ok {
			return fmt.Errorf("invalid --field %q, expected id=value", arg)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idText), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid field id in --field %q", arg)
		}
		if !known[id] {
			return fmt.Errorf("unknown custom field %d", id)
		}
		form[prefix+strconv.FormatInt(id, 10)] = value
	}
	return nil
}
