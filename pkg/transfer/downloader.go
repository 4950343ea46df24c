package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInProgress is returned when the same receipt is already being downloaded.
var ErrInProgress = errors.New("transfer already in progress")

// Gate tracks the active transfer. Satisfied by *feeds.Receipts.
type Gate interface {
	StartTransfer(id string) bool
	EndTransfer()
}

// Source opens a receipt document. Satisfied by *api.Client.
type Source interface {
	DownloadReceipt(ctx context.Context, receiptID string) (io.ReadCloser, error)
}

// Downloader fetches receipt documents into a Sink.
type Downloader struct {
	gate   Gate
	source Source
	sink   Sink
	logger zerolog.Logger
}

// NewDownloader creates a Downloader.
func NewDownloader(gate Gate, source Source, sink Sink, logger zerolog.Logger) (*Downloader, error) {
	if gate == nil || source == nil || sink == nil {
		return nil, errors.New("gate, source and sink are required")
	}
	return &Downloader{
		gate:   gate,
		source: source,
		sink:   sink,
		logger: logger.With().Str("component", "Downloader").Logger(),
	}, nil
}

// Download materializes one receipt and returns its location. It fails with
// ErrInProgress if receiptID is already being downloaded. The transfer marker
// is always released when Download returns.
func (d *Downloader) Download(ctx context.Context, receiptID string) (string, error) {
	if receiptID == "" {
		return "", errors.New("receipt id is required")
	}
	if !d.gate.StartTransfer(receiptID) {
		d.logger.Debug().Str("receipt_id", receiptID).Msg("Duplicate download suppressed.")
		return "", ErrInProgress
	}
	defer d.gate.EndTransfer()

	body, err := d.source.DownloadReceipt(ctx, receiptID)
	if err != nil {
		return "", fmt.Errorf("failed to download receipt %s: %w", receiptID, err)
	}
	defer body.Close()

	location, err := d.sink.Write(ctx, FileName(receiptID), body)
	if err != nil {
		return "", fmt.Errorf("failed to store receipt %s: %w", receiptID, err)
	}
	return location, nil
}

// FileName returns the document name used for a receipt.
func FileName(receiptID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, receiptID)
	return "receipt-" + safe + ".pdf"
}
