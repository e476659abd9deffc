package processor

import (
	"context"

	"github.com/pintrader/pintrader-backend/internal/pkg/ipfs"
)

// IPFSBackend adapts the IPFS HTTP client to the Backend interface.
type IPFSBackend struct {
	client *ipfs.Client
}

func NewIPFSBackend(client *ipfs.Client) *IPFSBackend {
	return &IPFSBackend{client: client}
}

func (b *IPFSBackend) Connect(ctx context.Context) (Session, error) {
	return b.client.Connect(ctx)
}
