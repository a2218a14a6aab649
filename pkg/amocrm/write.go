package amocrm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	httpclient "github.com/natserract/amocrm/pkg/http"
	"go.uber.org/zap"
)

// CreateContact creates one contact. Custom-field values are coerced to their
// declared types if the API rejects them.
func (c *Client) CreateContact(ctx context.Context, contact *ContactInput) (*CreatedEntity, error) {
	return c.create(ctx, KindContacts, contact)
}

// CreateLead creates one lead. Custom-field values are coerced to their
// declared types if the API rejects them.
func (c *Client) CreateLead(ctx context.Context, lead *LeadInput) (*CreatedEntity, error) {
	return c.create(ctx, KindLeads, lead)
}

func (c *Client) create(ctx context.Context, kind EntityKind, payload Payload) (*CreatedEntity, error) {
	resp, err := c.CreateEntity(ctx, kind, payload, DefaultWriteAttempts)
	if err != nil {
		return nil, err
	}

	var parsed createResponse
	if err := resp.Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse create %s response: %w", kind, err)
	}

	var created []CreatedEntity
	if raw, ok := parsed.Embedded[string(kind)]; ok {
		if err := json.Unmarshal(raw, &created); err != nil {
			return nil, fmt.Errorf("failed to parse created %s: %w", kind, err)
		}
	}
	if len(created) == 0 {
		return nil, &httpclient.InvalidResponseError{URL: c.baseURL + "/api/v4/" + string(kind), Body: resp.Body}
	}

	c.logger.Info("Entity created", zap.String("entity", string(kind)), zap.Int64("id", created[0].ID))
	return &created[0], nil
}

// CreateEntity posts payload to the kind collection. When the API rejects it
// with a type validation error, every custom-field value is coerced to the
// declared type of its field and the write is resubmitted. maxAttempts bounds
// the dispatcher calls of the whole sequence: the writes and the single field
// metadata request both count against it, so the default of 3 allows one
// corrected resubmission.
//
// The custom fields of payload are replaced with the coerced values. Errors
// that are not HTTP rejections are returned as they are; rejections are
// returned as *WriteRejectedError.
func (c *Client) CreateEntity(ctx context.Context, kind EntityKind, payload Payload, maxAttempts int) (*httpclient.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	endpoint, err := httpclient.BuildURL(c.baseURL, "/api/v4/"+string(kind), nil)
	if err != nil {
		return nil, err
	}

	var meta map[int64]CustomField
	calls := 0
	for attempt := 1; ; attempt++ {
		logger := c.logger.With(zap.String("entity", string(kind)), zap.Int("attempt", attempt))
		logger.Info("Creating entity")

		resp, err := c.dispatcher.Send(ctx, httpclient.Request{
			Method:       http.MethodPost,
			URL:          endpoint,
			Body:         []interface{}{payload},
			RequiresAuth: true,
			Retries:      httpclient.DefaultRetries,
		})
		calls++
		if err == nil {
			return resp, nil
		}

		var httpErr *httpclient.HTTPError
		if !errors.As(err, &httpErr) {
			logger.Error("Create request failed", zap.Error(err))
			return nil, fmt.Errorf("create %s failed: %w", kind, err)
		}

		validation := ParseValidationErrors(httpErr.Body)
		rejected := &WriteRejectedError{Kind: kind, Attempts: attempt, Validation: validation, Cause: err}

		if !anyFixable(validation) {
			logger.Error("Create rejected",
				zap.Int("status_code", httpErr.StatusCode),
				zap.String("response", string(httpErr.Body)))
			return nil, rejected
		}
		needed := 1
		if meta == nil {
			needed++
		}
		if calls+needed > maxAttempts {
			logger.Error("Create rejected, coercion attempts exhausted",
				zap.String("response", string(httpErr.Body)))
			return nil, rejected
		}

		if meta == nil {
			fields, err := c.customFields(ctx, kind)
			calls++
			if err != nil {
				logger.Error("Failed to fetch field metadata for coercion", zap.Error(err))
				rejected.MetadataErr = err
				return nil, rejected
			}
			meta = make(map[int64]CustomField, len(fields))
			for _, f := range fields {
				meta[f.ID] = f
			}
		}

		logger.Warn("Coercing custom field values after type validation error",
			zap.Int("validation_errors", len(validation)),
			zap.Int("calls_left", maxAttempts-calls))
		payload.SetCustomFields(NormalizeCustomFields(payload.CustomFields(), meta, c.now()))
	}
}
