// ABOUTME: No-op and logging implementations of the collaborator interfaces
// ABOUTME: Used when the external services are not configured, and in tests

package platform

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// NoopDelivery accepts every delivery without doing anything.
type NoopDelivery struct{}

func (NoopDelivery) Deliver(ctx context.Context, req DeliveryRequest) error { return nil }

// NoopUploader fabricates a local URL for the uploaded media.
type NoopUploader struct{}

func (NoopUploader) Upload(ctx context.Context, data []byte, mediaType string) (string, error) {
	return fmt.Sprintf("local://media/%s", uuid.NewString()), nil
}

// NoopNotifier drops every event.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, ev Event) {}
