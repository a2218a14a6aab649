package amocrm

import (
	"context"

	"github.com/natserract/amocrm/pkg/oauth"
)

// CRMClient defines the operations available to presentation layers.
type CRMClient interface {
	// AuthorizationURL returns the consent page for the given state value.
	AuthorizationURL(state string) string
	Authorized(ctx context.Context) bool
	SessionState(ctx context.Context) (oauth.State, error)
	Login(ctx context.Context, code string) (oauth.TokenSet, error)
	RefreshSession(ctx context.Context) (oauth.TokenSet, error)
	Logout(ctx context.Context) error

	Account(ctx context.Context) (*Account, error)
	ContactFields(ctx context.Context) ([]CustomField, error)
	LeadFields(ctx context.Context) ([]CustomField, error)
	Contacts(ctx context.Context, page, limit int) ([]Contact, error)
	Leads(ctx context.Context, page, limit int) ([]Lead, error)
	CreateContact(ctx context.Context, contact *ContactInput) (*CreatedEntity, error)
	CreateLead(ctx context.Context, lead *LeadInput) (*CreatedEntity, error)
}

var _ CRMClient = (*Client)(nil)
