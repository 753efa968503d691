package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"chemdash/internal/domain/dashboard"
	"chemdash/internal/domain/ledger"
)

// CompressionAlgo specifies the compression algorithm used.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

const qualityLogTable = "sys_data_quality_log"

var qualityColumns = ColumnsOf[qualityRow]()

// qualityRow is one row of sys_data_quality_log.
type qualityRow struct {
	ID               uuid.UUID       `db:"id"`
	Fingerprint      string          `db:"fingerprint"`
	ViewVersion      int64           `db:"view_version"`
	Clean            bool            `db:"clean"`
	Report           json.RawMessage `db:"report"`
	ReportCompressed []byte          `db:"report_compressed"`
	CompressionAlgo  CompressionAlgo `db:"compression_algo"`
	ObservedAt       time.Time       `db:"observed_at"`
}

// QualityLog persists data-quality reports. Reports above the compression
// threshold are stored zstd-compressed.
type QualityLog struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes, default 10KB
	builder           squirrel.StatementBuilderType
}

var _ dashboard.QualityLog = (*QualityLog)(nil)

// NewQualityLog creates a quality log.
func NewQualityLog(txManager *TxManager) (*QualityLog, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &QualityLog{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
		builder:           squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}, nil
}

// Append implements dashboard.QualityLog.
func (l *QualityLog) Append(ctx context.Context, entry dashboard.QualityEntry) error {
	row, err := l.encode(entry)
	if err != nil {
		return err
	}

	sql, args, err := l.builder.
		Insert(qualityLogTable).
		Columns(qualityColumns...).
		Values(RowValues(row)...).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := l.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert data quality entry: %w", err)
	}
	return nil
}

// History returns the most recent entries, newest first.
func (l *QualityLog) History(ctx context.Context, limit int) ([]dashboard.QualityEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	sql, args, err := l.builder.
		Select(qualityColumns...).
		From(qualityLogTable).
		OrderBy("observed_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []qualityRow
	if err := pgxscan.Select(ctx, l.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query data quality log: %w", err)
	}

	entries := make([]dashboard.QualityEntry, 0, len(rows))
	for _, r := range rows {
		e, err := l.decode(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (l *QualityLog) encode(entry dashboard.QualityEntry) (qualityRow, error) {
	report, err := json.Marshal(entry.Report)
	if err != nil {
		return qualityRow{}, fmt.Errorf("marshal report: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return qualityRow{}, fmt.Errorf("generate id: %w", err)
	}

	row := qualityRow{
		ID:              id,
		Fingerprint:     entry.Fingerprint,
		ViewVersion:     int64(entry.Version),
		Clean:           entry.Report.Clean(),
		Report:          report,
		CompressionAlgo: CompressionNone,
		ObservedAt:      entry.ObservedAt.UTC(),
	}
	if row.ObservedAt.IsZero() {
		row.ObservedAt = time.Now().UTC()
	}

	if len(report) > l.compressThreshold {
		row.ReportCompressed = l.encoder.EncodeAll(report, nil)
		row.Report = nil
		row.CompressionAlgo = CompressionZstd
	}
	return row, nil
}

func (l *QualityLog) decode(r qualityRow) (dashboard.QualityEntry, error) {
	raw := []byte(r.Report)
	if r.CompressionAlgo == CompressionZstd && len(r.ReportCompressed) > 0 {
		decompressed, err := l.decoder.DecodeAll(r.ReportCompressed, nil)
		if err != nil {
			return dashboard.QualityEntry{}, fmt.Errorf("decompress report %s: %w", r.ID, err)
		}
		raw = decompressed
	}

	var report ledger.QualityReport
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &report); err != nil {
			return dashboard.QualityEntry{}, fmt.Errorf("unmarshal report %s: %w", r.ID, err)
		}
	}

	return dashboard.QualityEntry{
		Fingerprint: r.Fingerprint,
		Version:     uint64(r.ViewVersion),
		ObservedAt:  r.ObservedAt,
		Report:      report,
	}, nil
}
