// Package sessionstore is the accessor for the external session key-value service.
package sessionstore

import (
	"context"
	"encoding/json"

	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/pkg/errors"
)

// SessionTypeAny is the only session type the gateway writes.
const SessionTypeAny = "Any"

// Resource is the record the session service stores. Data is the JSON encoding of the payload.
type Resource struct {
	ID          string `json:"id"`
	Data        string `json:"data"`
	EncryptData bool   `json:"encryptData"`
	SessionType string `json:"sessionType"`
}

// Store creates, updates and reads session resources by id. Implementations return errors that
// match ErrSessionNotFound when the id is unknown and ErrExternalServiceUnavailable when the
// service cannot be reached.
type Store interface {
	CreateSession(ctx context.Context, sessionID string, resource Resource, traceActivityID string) error
	UpdateSession(ctx context.Context, sessionID string, resource Resource, traceActivityID string) error
	GetSession(ctx context.Context, sessionID string, traceActivityID string) (Resource, error)
}

// CreateSessionFromData stores data as a new encrypted session resource.
func CreateSessionFromData[T any](ctx context.Context, store Store, sessionID string, data T, traceActivityID string) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "[CreateSessionFromData] encode")
	}
	resource := Resource{
		ID:          sessionID,
		Data:        string(encoded),
		EncryptData: true,
		SessionType: SessionTypeAny,
	}
	return store.CreateSession(ctx, sessionID, resource, traceActivityID)
}

// UpdateSessionResourceData replaces the payload of an existing session.
func UpdateSessionResourceData[T any](ctx context.Context, store Store, sessionID string, data T, traceActivityID string) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "[UpdateSessionResourceData] encode")
	}
	return store.UpdateSession(ctx, sessionID, Resource{Data: string(encoded)}, traceActivityID)
}

// GetSessionResourceData reads a session and decodes its payload into T.
func GetSessionResourceData[T any](ctx context.Context, store Store, sessionID string, traceActivityID string) (T, error) {
	var data T
	resource, err := store.GetSession(ctx, sessionID, traceActivityID)
	if err != nil {
		return data, err
	}
	if resource.Data == "" {
		return data, errors.Wrapf(apperrors.ErrIntegrationFailure, "[GetSessionResourceData] session %s has no data", sessionID)
	}
	if err := json.Unmarshal([]byte(resource.Data), &data); err != nil {
		return data, errors.Wrapf(apperrors.ErrIntegrationFailure, "[GetSessionResourceData] decode session %s: %v", sessionID, err)
	}
	return data, nil
}
