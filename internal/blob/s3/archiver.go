package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const (
	contentTypeJSONL = "application/x-ndjson"

	// multipartThreshold switches history uploads to the multipart manager.
	multipartThreshold = 8 * 1024 * 1024
	historyPageSize    = 500
)

// Archiver writes scan passes and opportunity history as JSONL objects.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader // optional
	logger *slog.Logger
}

// NewArchiver creates an Archiver. reader may be nil, in which case history
// archives are always rewritten.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		logger: logger.With(slog.String("component", "s3_archiver")),
	}
}

// ArchivePass uploads the opportunities of one scan pass to
// scans/YYYY/MM/DD/<passID>.jsonl, one record per line. Empty passes are
// not written. It returns the object path.
func (a *Archiver) ArchivePass(ctx context.Context, passID string, at time.Time, opps []*domain.EnhancedOpportunity) (string, error) {
	if len(opps) == 0 {
		return "", nil
	}
	records := make([]domain.OpportunityRecord, len(opps))
	for i, o := range opps {
		records[i] = o.ToRecord()
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive pass %s: %w", passID, err)
	}
	path := passPath(passID, at)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL); err != nil {
		return "", fmt.Errorf("s3blob: archive pass %s: %w", passID, err)
	}
	a.logger.DebugContext(ctx, "scan pass archived",
		slog.String("path", path),
		slog.Int("opportunities", len(records)),
	)
	return path, nil
}

// ArchiveHistory copies every stored opportunity discovered before the
// cutoff to archive/opportunities/YYYY-MM.jsonl. When a reader is set and
// the object already exists nothing is written. Records are not deleted
// from the store.
func (a *Archiver) ArchiveHistory(ctx context.Context, store domain.OpportunityStore, before time.Time) (int, error) {
	path := historyPath(before)
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive history: %w", err)
		}
		if exists {
			a.logger.InfoContext(ctx, "history archive already present", slog.String("path", path))
			return 0, nil
		}
	}

	var records []domain.OpportunityRecord
	for offset := 0; ; offset += historyPageSize {
		page, err := store.ListRecentOpportunities(ctx, domain.ListOpts{
			Until:  &before,
			Limit:  historyPageSize,
			Offset: offset,
		})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive history query: %w", err)
		}
		records = append(records, page...)
		if len(page) < historyPageSize {
			break
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history: %w", err)
	}
	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), contentTypeJSONL)
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive history upload: %w", err)
	}

	a.logger.InfoContext(ctx, "opportunity history archived",
		slog.String("path", path),
		slog.Int("count", len(records)),
		slog.String("before", before.Format(time.RFC3339)),
	)
	return len(records), nil
}

//	scans/2026/03/01/<passID>.jsonl
func passPath(passID string, at time.Time) string {
	return fmt.Sprintf("scans/%s/%s.jsonl", at.UTC().Format("2006/01/02"), passID)
}

//	archive/opportunities/2026-03.jsonl
func historyPath(before time.Time) string {
	return fmt.Sprintf("archive/opportunities/%s.jsonl", before.UTC().Format("2006-01"))
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
