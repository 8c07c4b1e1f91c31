package storage

import (
	"context"
	"io"
)

// Upload is an incoming file to store.
type Upload struct {
	FileName    string
	ContentType string
	Reader      io.Reader
}

// AssetStore persists uploaded files and returns a serving URL.
type AssetStore interface {
	Save(ctx context.Context, upload Upload) (string, error)
	Remove(ctx context.Context, url string) error
}
