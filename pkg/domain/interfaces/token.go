package interfaces

import (
	"context"
	"errors"

	"github.com/aiga-lab/mnemosyne/pkg/domain/types"
)

// ErrNotConnected is returned by a TokenSource when the user never authorized
// the service or the stored token is irrecoverably invalid. It is
// user-actionable ("connect it first") and must not be retried.
var ErrNotConnected = errors.New("service not connected")

// TokenSource is the boundary to the OAuth collaborator. It either returns a
// valid access token for (user, service) or fails with ErrNotConnected.
// Token refresh happens behind this interface and is out of scope here.
type TokenSource interface {
	Token(ctx context.Context, userID types.UserID, service types.Service) (string, error)
}
