package interfaces

import (
	"context"

	"github.com/ternarybob/vigil/internal/models"
)

// FetchService is the single choke point for origin traffic: one request in
// flight at a time, minimum spacing between request starts, session kept
// alive transparently. A 404-class response is a valid Document outcome, not
// an error; callers interpret the status.
type FetchService interface {
	Fetch(ctx context.Context, path string) (*models.FetchedDocument, error)
}
