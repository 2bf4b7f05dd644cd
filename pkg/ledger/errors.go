package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cosmos/cosmos-sdk/types/bech32"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

// classify maps transport errors onto the bridge error taxonomy. Auth
// failures are permanent for this adapter instance; everything else the
// stream owner is expected to retry.
func classify(err error) error {
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return bridge.ErrAdapterAuth.Wrap(err.Error())
	default:
		return err
	}
}

// IsAuthError reports whether err is a permanent authentication or
// authorization failure.
func IsAuthError(err error) bool {
	return errors.Is(err, bridge.ErrAdapterAuth)
}

// IsTransient reports whether err is a network-level failure worth retrying.
// Stream EOF counts: the server hung up and a re-subscribe is in order.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

// addressBytes decodes the configured bech32 addresses into the raw bytes the
// watch request carries.
func addressBytes(addresses []string) ([][]byte, error) {
	out := make([][]byte, 0, len(addresses))
	for _, addr := range addresses {
		_, raw, err := bech32.DecodeAndConvert(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid watch address %q: %w", addr, err)
		}
		out = append(out, raw)
	}
	return out, nil
}
