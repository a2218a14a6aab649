package amocrm

import (
	"encoding/json"
)

// EntityKind names a writable entity collection.
type EntityKind string

const (
	KindContacts EntityKind = "contacts"
	KindLeads    EntityKind = "leads"
)

// FieldType is the declared type of a custom field.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldTextArea    FieldType = "textarea"
	FieldURL         FieldType = "url"
	FieldNumeric     FieldType = "numeric"
	FieldPrice       FieldType = "price"
	FieldCheckbox    FieldType = "checkbox"
	FieldSelect      FieldType = "select"
	FieldRadioButton FieldType = "radiobutton"
	FieldMultiSelect FieldType = "multiselect"
	FieldDate        FieldType = "date"
	FieldDateTime    FieldType = "date_time"
	FieldBirthday    FieldType = "birthday"
	FieldMultiText   FieldType = "multitext"
)

type Account struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Subdomain     string `json:"subdomain"`
	Language      string `json:"language"`
	Country       string `json:"country,omitempty"`
	Currency      string `json:"currency,omitempty"`
	CurrentUserID int64  `json:"current_user_id"`
	CreatedAt     int64  `json:"created_at,omitempty"`
}

type FieldEnum struct {
	ID    int64  `json:"id"`
	Value string `json:"value"`
	Sort  int    `json:"sort,omitempty"`
}

// CustomField is the metadata of one custom field.
type CustomField struct {
	ID         int64       `json:"id"`
	Name       string      `json:"name"`
	Code       string      `json:"code,omitempty"`
	Type       FieldType   `json:"type"`
	Sort       int         `json:"sort,omitempty"`
	Enums      []FieldEnum `json:"enums,omitempty"`
	EntityType string      `json:"entity_type,omitempty"`
}

type FieldValueItem struct {
	Value    FieldValue `json:"value"`
	EnumID   int64      `json:"enum_id,omitempty"`
	EnumCode string     `json:"enum_code,omitempty"`
}

// CustomFieldValues holds the values of one custom field on an entity.
type CustomFieldValues struct {
	FieldID   int64            `json:"field_id"`
	FieldName string           `json:"field_name,omitempty"`
	FieldCode string           `json:"field_code,omitempty"`
	FieldType FieldType        `json:"field_type,omitempty"`
	Values    []FieldValueItem `json:"values"`
}

type Contact struct {
	ID                 int64               `json:"id"`
	Name               string              `json:"name"`
	FirstName          string              `json:"first_name"`
	LastName           string              `json:"last_name"`
	ResponsibleUserID  int64               `json:"responsible_user_id,omitempty"`
	CreatedAt          int64               `json:"created_at,omitempty"`
	UpdatedAt          int64               `json:"updated_at,omitempty"`
	CustomFieldsValues []CustomFieldValues `json:"custom_fields_values,omitempty"`
}

type Lead struct {
	ID                 int64               `json:"id"`
	Name               string              `json:"name"`
	Price              int64               `json:"price"`
	StatusID           int64               `json:"status_id,omitempty"`
	PipelineID         int64               `json:"pipeline_id,omitempty"`
	ResponsibleUserID  int64               `json:"responsible_user_id,omitempty"`
	CreatedAt          int64               `json:"created_at,omitempty"`
	UpdatedAt          int64               `json:"updated_at,omitempty"`
	CustomFieldsValues []CustomFieldValues `json:"custom_fields_values,omitempty"`
}

// Payload is a write body whose custom-field values can be rewritten.
type Payload interface {
	CustomFields() []CustomFieldValues
	SetCustomFields(fields []CustomFieldValues)
}

type ContactInput struct {
	FirstName          string              `json:"first_name"`
	LastName           string              `json:"last_name"`
	Name               string              `json:"name,omitempty"`
	ResponsibleUserID  int64               `json:"responsible_user_id,omitempty"`
	CustomFieldsValues []CustomFieldValues `json:"custom_fields_values,omitempty"`
}

func (c *ContactInput) CustomFields() []CustomFieldValues {
	return c.CustomFieldsValues
}

func (c *ContactInput) SetCustomFields(fields []CustomFieldValues) {
	c.CustomFieldsValues = fields
}

type LeadInput struct {
	Name               string              `json:"name"`
	Price              int64               `json:"price,omitempty"`
	StatusID           int64               `json:"status_id,omitempty"`
	PipelineID         int64               `json:"pipeline_id,omitempty"`
	ResponsibleUserID  int64               `json:"responsible_user_id,omitempty"`
	CustomFieldsValues []CustomFieldValues `json:"custom_fields_values,omitempty"`
}

func (l *LeadInput) CustomFields() []CustomFieldValues {
	return l.CustomFieldsValues
}

func (l *LeadInput) SetCustomFields(fields []CustomFieldValues) {
	l.CustomFieldsValues = fields
}

// CreatedEntity is one element of a create response.
type CreatedEntity struct {
	ID        int64  `json:"id"`
	RequestID string `json:"request_id"`
}

type customFieldsResponse struct {
	Embedded struct {
		CustomFields []CustomField `json:"custom_fields"`
	} `json:"_embedded"`
}

type contactsResponse struct {
	Embedded struct {
		Contacts []Contact `json:"contacts"`
	} `json:"_embedded"`
}

type leadsResponse struct {
	Embedded struct {
		Leads []Lead `json:"leads"`
	} `json:"_embedded"`
}

// createResponse decodes `_embedded.<kind>` of a create response.
type createResponse struct {
	Embedded map[string]json.RawMessage `json:"_embedded"`
}
