package fetch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/klauspost/compress/zstd"

	"klvviewer/internal/models"
)

const (
	containerExt = ".klv"
	zstdExt      = ".zst"
)

var (
	sharedDecoder persistentDecoder
	sharedEncoder persistentEncoder
)

type persistentDecoder struct {
	once sync.Once
	dec  *zstd.Decoder
	err  error
}

// get returns the shared decoder. DecodeAll is safe for concurrent use.
func (p *persistentDecoder) get() (*zstd.Decoder, error) {
	p.once.Do(func() {
		p.dec, p.err = zstd.NewReader(nil)
	})
	return p.dec, p.err
}

type persistentEncoder struct {
	once sync.Once
	enc  *zstd.Encoder
	err  error
}

func (p *persistentEncoder) get() (*zstd.Encoder, error) {
	p.once.Do(func() {
		p.enc, p.err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	})
	return p.enc, p.err
}

// DirFetcher serves containers from a directory tree laid out as
// <root>/<instance>/<frame>/<quality>.klv, optionally zstd compressed
// (<quality>.klv.zst).
type DirFetcher struct {
	Root string
}

// Path returns the uncompressed container path of id at quality q. Instance
// ids that would leave Root are rejected.
func (f DirFetcher) Path(id models.ImageID, q models.Quality) (string, error) {
	if err := CheckInstance(id); err != nil {
		return "", err
	}
	return filepath.Join(f.Root, id.InstanceID, strconv.FormatUint(uint64(id.Frame), 10), q.String()+containerExt), nil
}

// Fetch reads the container, preferring the uncompressed file. A missing
// file is reported as a 404.
func (f DirFetcher) Fetch(ctx context.Context, id models.ImageID, q models.Quality) ([]byte, error) {
	path, err := f.Path(id, q)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{StatusCode: StatusTransport, Target: path, Err: err}
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, &FetchError{StatusCode: StatusTransport, Target: path, Err: err}
	}

	compressed, err := os.ReadFile(path + zstdExt)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &FetchError{StatusCode: StatusNotFound, Target: path}
	}
	if err != nil {
		return nil, &FetchError{StatusCode: StatusTransport, Target: path + zstdExt, Err: err}
	}

	dec, err := sharedDecoder.get()
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	data, err = dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, &FetchError{StatusCode: StatusTransport, Target: path + zstdExt, Err: err}
	}
	return data, nil
}

// WriteDir stores a container in the layout read by DirFetcher
func WriteDir(root string, id models.ImageID, q models.Quality, data []byte, compress bool) (string, error) {
	path, err := DirFetcher{Root: root}.Path(id, q)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("error creating container directory: %w", err)
	}

	if compress {
		enc, err := sharedEncoder.get()
		if err != nil {
			return "", fmt.Errorf("create zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		path += zstdExt
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("error writing container: %w", err)
	}
	return path, nil
}
