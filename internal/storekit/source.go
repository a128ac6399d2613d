package storekit

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang/glog"
)

var (
	ErrReceiptMissing  = errors.New("storekit: receipt not available")
	ErrRefreshFailed   = errors.New("storekit: receipt refresh failed")
	ErrReceiptTooLarge = errors.New("storekit: receipt exceeds size limit")
)

// Refresher asks the platform to obtain a fresh receipt file.
type Refresher interface {
	RefreshReceipt(ctx context.Context) error
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) RefreshReceipt(ctx context.Context) error { return f(ctx) }

// FileSource reads the platform receipt from a file. The file is read fully
// into memory; MaxBytes bounds how much is accepted.
type FileSource struct {
	Path      string
	MaxBytes  int64
	Refresher Refresher
}

// Fetch returns the current receipt bytes or ErrReceiptMissing when the file
// is absent or empty.
func (s *FileSource) Fetch() ([]byte, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrReceiptMissing
		}
		return nil, fmt.Errorf("failed to open receipt: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if s.MaxBytes > 0 {
		r = io.LimitReader(f, s.MaxBytes+1)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}
	if s.MaxBytes > 0 && int64(len(raw)) > s.MaxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrReceiptTooLarge, s.MaxBytes)
	}
	if len(raw) == 0 {
		return nil, ErrReceiptMissing
	}
	glog.V(2).Infof("storekit: read %d receipt bytes from %s", len(raw), s.Path)
	return raw, nil
}

// Load fetches the receipt, requesting a single refresh when it is missing.
// refreshed reports whether that refresh was spent.
func (s *FileSource) Load(ctx context.Context) (raw []byte, refreshed bool, err error) {
	raw, err = s.Fetch()
	if err == nil || !errors.Is(err, ErrReceiptMissing) {
		return raw, false, err
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, true, err
	}
	raw, err = s.Fetch()
	return raw, true, err
}

// Refresh delegates to the configured Refresher. Without one the receipt
// cannot be refreshed and ErrRefreshFailed is returned.
func (s *FileSource) Refresh(ctx context.Context) error {
	if s.Refresher == nil {
		return fmt.Errorf("%w: no refresher configured", ErrRefreshFailed)
	}
	glog.V(1).Infof("storekit: requesting receipt refresh")
	if err := s.Refresher.RefreshReceipt(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return nil
}

// EncodeBase64 encodes receipt bytes for transport.
func EncodeBase64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
