package amocrm

import (
	"strconv"
	"strings"
)

// Form field prefixes for custom-field inputs, followed by the field id.
const (
	ContactFieldPrefix = "cf_"
	LeadFieldPrefix    = "lf_"
)

// NewContactFromForm builds a contact from raw form input. first_name and
// last_name are read directly; custom fields are read from cf_<id> for every
// field in fields. Blank inputs are skipped and values are kept as strings.
func NewContactFromForm(form map[string]string, fields []CustomField) *ContactInput {
	return &ContactInput{
		FirstName:          strings.TrimSpace(form["first_name"]),
		LastName:           strings.TrimSpace(form["last_name"]),
		CustomFieldsValues: customFieldsFromForm(form, fields, ContactFieldPrefix),
	}
}

// NewLeadFromForm builds a lead from raw form input. The name is read from
// lead_name and custom fields from lf_<id>.
func NewLeadFromForm(form map[string]string, fields []CustomField) *LeadInput {
	return &LeadInput{
		Name:               strings.TrimSpace(form["lead_name"]),
		CustomFieldsValues: customFieldsFromForm(form, fields, LeadFieldPrefix),
	}
}

func customFieldsFromForm(form map[string]string, fields []CustomField, prefix string) []CustomFieldValues {
	var out []CustomFieldValues
	for _, field := range fields {
		raw, ok := form[prefix+strconv.FormatInt(field.ID, 10)]
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		out = append(out, CustomFieldValues{
			FieldID: field.ID,
			Values:  []FieldValueItem{{Value: String(raw)}},
		})
	}
	return out
}
