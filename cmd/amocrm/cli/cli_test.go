package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/natserract/amocrm/pkg/amocrm"
	"github.com/natserract/amocrm/pkg/oauth"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	amocrm.CRMClient

	state    oauth.State
	fields   []amocrm.CustomField
	contacts []amocrm.Contact
	leads    []amocrm.Lead

	gotPage, gotLimit int
	gotContact        *amocrm.ContactInput
	gotLead           *amocrm.LeadInput
	fieldCalls        int
	loggedOut         bool
}

func (f *fakeClient) AuthorizationURL(state string) string {
	return "https://www.amocrm.ru/oauth?state=" + state
}

func (f *fakeClient) SessionState(ctx context.Context) (oauth.State, error) {
	return f.state, nil
}

func (f *fakeClient) Login(ctx context.Context, code string) (oauth.TokenSet, error) {
	if code != "good" {
		return oauth.TokenSet{}, oauth.ErrInvalidTokenResponse
	}
	return oauth.TokenSet{TokenType: "Bearer", ExpiresIn: 3600, CreatedAt: 1700000000}, nil
}

func (f *fakeClient) Logout(ctx context.Context) error {
	f.loggedOut = true
	return nil
}

func (f *fakeClient) ContactFields(ctx context.Context) ([]amocrm.CustomField, error) {
	f.fieldCalls++
	return f.fields, nil
}

func (f *fakeClient) LeadFields(ctx context.Context) ([]amocrm.CustomField, error) {
	f.fieldCalls++
	return f.fields, nil
}

func (f *fakeClient) Contacts(ctx context.Context, page, limit int) ([]amocrm.Contact, error) {
	f.gotPage, f.gotLimit = page, limit
	return f.contacts, nil
}

func (f *fakeClient) Leads(ctx context.Context, page, limit int) ([]amocrm.Lead, error) {
	f.gotPage, f.gotLimit = page, limit
	return f.leads, nil
}

func (f *fakeClient) CreateContact(ctx context.Context, contact *amocrm.ContactInput) (*amocrm.CreatedEntity, error) {
	f.gotContact = contact
	return &amocrm.CreatedEntity{ID: 1, RequestID: "0"}, nil
}

func (f *fakeClient) CreateLead(ctx context.Context, lead *amocrm.LeadInput) (*amocrm.CreatedEntity, error) {
	f.gotLead = lead
	return &amocrm.CreatedEntity{ID: 2, RequestID: "0"}, nil
}

func run(t *testing.T, client *fakeClient, args ...string) (string, error) {
	t.Helper()

	released := false
	root, s := newRootCommand(func(cmd *cobra.Command, debug bool) (amocrm.CRMClient, func(), error) {
		return client, func() { released = true }, nil
	})

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)

	err := root.ExecuteContext(context.Background())
	s.close()
	if err == nil {
		assert.True(t, released, "client must be released")
	}
	return out.String(), err
}

func TestAuthURL(t *testing.T) {
	out, err := run(t, &fakeClient{}, "auth-url", "--state", "abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://www.amocrm.ru/oauth?state=abc","state":"abc"}`, out)

	out, err = run(t, &fakeClient{}, "auth-url")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Len(t, got["state"], 36)
}

func TestLoginStatusLogout(t *testing.T) {
	client := &fakeClient{state: oauth.StateStale}

	out, err := run(t, client, "login", "good")
	require.NoError(t, err)
	expires := time.Unix(1700003600, 0).UTC().Format(time.RFC3339)
	assert.JSONEq(t, `{"status":"authenticated","token_type":"Bearer","expires_at":"`+expires+`"}`, out)

	_, err = run(t, client, "login", "bad")
	assert.True(t, errors.Is(err, oauth.ErrInvalidTokenResponse))

	out, err = run(t, client, "status")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"stale"}`, out)

	out, err = run(t, client, "logout")
	require.NoError(t, err)
	assert.True(t, client.loggedOut)
	assert.JSONEq(t, `{"status":"unauthenticated"}`, out)
}

func TestList(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		wantPage  int
		wantLimit int
		wantOut   string
		wantErr   bool
	}{
		{name: "contacts defaults", args: []string{"list", "contacts"}, wantPage: 1, wantLimit: 50, wantOut: `[{"id":1,"name":"Ann","first_name":"","last_name":""}]`},
		{name: "leads paged", args: []string{"list", "leads", "--page", "3", "--limit", "10"}, wantPage: 3, wantLimit: 10, wantOut: `[{"id":2,"name":"Deal","price":100}]`},
		{name: "unknown entity", args: []string{"list", "companies"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &fakeClient{
				contacts: []amocrm.Contact{{ID: 1, Name: "Ann"}},
				leads:    []amocrm.Lead{{ID: 2, Name: "Deal", Price: 100}},
			}
			out, err := run(t, client, tt.args...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, client.gotPage)
			assert.Equal(t, tt.wantLimit, client.gotLimit)
			assert.JSONEq(t, tt.wantOut, out)
		})
	}
}

func TestCreateContact(t *testing.T) {
	client := &fakeClient{fields: []amocrm.CustomField{{ID: 10, Name: "Age", Type: amocrm.FieldNumeric}}}

	out, err := run(t, client, "create-contact", "--first-name", "Ann", "--last-name", "Lee", "--field", "10=42abc")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"request_id":"0"}`, out)

	require.NotNil(t, client.gotContact)
	assert.Equal(t, "Ann", client.gotContact.FirstName)
	assert.Equal(t, []amocrm.CustomFieldValues{
		{FieldID: 10, Values: []amocrm.FieldValueItem{{Value: amocrm.String("42abc")}}},
	}, client.gotContact.CustomFieldsValues)
}

func TestCreateContactFieldErrors(t *testing.T) {
	client := &fakeClient{fields: []amocrm.CustomField{{ID: 10}}}

	_, err := run(t, client, "create-contact", "--first-name", "Ann", "--field", "99=x")
	assert.EqualError(t, err, "unknown custom field 99")

	_, err = run(t, client, "create-contact", "--first-name", "Ann", "--field", "nonsense")
	assert.Error(t, err)
	assert.Nil(t, client.gotContact)
}

func TestCreateLead(t *testing.T) {
	client := &fakeClient{}

	out, err := run(t, client, "create-lead", "--name", "Deal", "--price", "1500")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"request_id":"0"}`, out)
	assert.Zero(t, client.fieldCalls, "no metadata request without custom fields")

	require.NotNil(t, client.gotLead)
	assert.Equal(t, "Deal", client.gotLead.Name)
	assert.Equal(t, int64(1500), client.gotLead.Price)
	assert.Empty(t, client.gotLead.CustomFieldsValues)
}
