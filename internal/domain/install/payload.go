package install

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrEmptyArchive       = errors.New("install: downloaded archive is empty")
	ErrNotZip             = errors.New("install: downloaded payload is not a zip archive")
	ErrUnsupportedPayload = errors.New("install: unsupported payload type")
)

// Fetcher downloads a bundle. The result may be a []byte, *bytes.Buffer,
// io.Reader or string.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (any, error)
}

// Downloader is the byte-oriented transport of httpclient.Client.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, url string) (any, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (any, error) {
	return f(ctx, url)
}

// FromDownloader wraps a Downloader.
func FromDownloader(d Downloader) Fetcher {
	return FetcherFunc(func(ctx context.Context, url string) (any, error) {
		return d.Download(ctx, url)
	})
}

// normalizePayload flattens the transport's response into bytes.
func normalizePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, ErrEmptyArchive
	case []byte:
		return p, nil
	case *bytes.Buffer:
		if p == nil {
			return nil, ErrEmptyArchive
		}
		return p.Bytes(), nil
	case string:
		return []byte(p), nil
	case io.Reader:
		data, err := io.ReadAll(p)
		if err != nil {
			return nil, fmt.Errorf("read payload: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedPayload, v)
	}
}

// checkArchive rejects payloads that cannot be a bundle. Zip-based
// formats such as jar are accepted.
func checkArchive(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyArchive
	}
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		if m.Is("application/zip") {
			return nil
		}
	}
	return ErrNotZip
}
