// Package export writes the upload log of a job as Parquet files to storage,
// one file per log status.
package export

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/pkg/batch/adapter/storage"
	"github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
	"github.com/tigerroll/statreg/pkg/batch/support/util/exception"
	"github.com/tigerroll/statreg/pkg/batch/support/util/logger"
)

const moduleName = "export"

// LogRow is the Parquet schema of one upload log entry.
type LogRow struct {
	JobID         string `parquet:"name=job_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Position      int32  `parquet:"name=position, type=INT32"`
	Status        string `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8"`
	ExternalID    string `parquet:"name=external_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RegID         *int64 `parquet:"name=reg_id, type=INT64, repetitiontype=OPTIONAL"`
	UnitName      string `parquet:"name=unit_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Note          string `parquet:"name=note, type=BYTE_ARRAY, convertedtype=UTF8"`
	Errors        string `parquet:"name=errors, type=BYTE_ARRAY, convertedtype=UTF8"`
	Summary       string `parquet:"name=summary, type=BYTE_ARRAY, convertedtype=UTF8"`
	SerializedRaw string `parquet:"name=serialized_raw, type=BYTE_ARRAY, convertedtype=UTF8"`
	StartedAt     int64  `parquet:"name=started_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	EndedAt       int64  `parquet:"name=ended_at, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
}

// NewLogRow converts an entry.
func NewLogRow(e model.UploadLogEntry) LogRow {
	row := LogRow{
		JobID:         e.JobID,
		Position:      int32(e.Position),
		Status:        string(e.Status),
		ExternalID:    e.ExternalID,
		UnitName:      e.UnitName,
		Note:          e.Note,
		Errors:        e.Errors,
		Summary:       e.Summary,
		SerializedRaw: e.SerializedRaw,
		StartedAt:     e.StartedAt.UnixMilli(),
		EndedAt:       e.EndedAt.UnixMilli(),
	}
	if e.RegID != nil {
		id := int64(*e.RegID)
		row.RegID = &id
	}
	return row
}

// ExporterParams defines the dependencies of NewLogExporter.
type ExporterParams struct {
	fx.In
	Logs    repository.UploadLogRepository
	Storage storage.StorageConnectionResolver
	Cfg     *config.ExportConfig
}

// LogExporter exports upload logs.
type LogExporter struct {
	logs    repository.UploadLogRepository
	storage storage.StorageConnectionResolver
	cfg     config.ExportConfig
}

// NewLogExporter creates a LogExporter.
func NewLogExporter(p ExporterParams) *LogExporter {
	return &LogExporter{logs: p.Logs, storage: p.Storage, cfg: *p.Cfg}
}

// Export writes the log of jobID to <base_dir>/job=<id>/status=<status>/upload_log.parquet
// and returns the object names written. Partitions that fail are reported
// together; the others are still written.
func (e *LogExporter) Export(ctx context.Context, jobID string) ([]string, error) {
	codec, err := getCompressionCodec(e.cfg.Compression)
	if err != nil {
		return nil, exception.NewJobError(moduleName, "", "invalid export compression", err)
	}
	entries, err := e.logs.ListByJob(ctx, jobID)
	if err != nil {
		return nil, exception.NewJobError(moduleName, "", fmt.Sprintf("failed to read upload log of job %s", jobID), err)
	}
	if len(entries) == 0 {
		logger.Infof("Export: job %s has no upload log entries, nothing written.", jobID)
		return nil, nil
	}
	conn, err := e.storage.ResolveStorageConnection(ctx, e.cfg.Storage)
	if err != nil {
		return nil, exception.NewJobError(moduleName, exception.CodeSourceUnavailable, fmt.Sprintf("storage %q is unavailable", e.cfg.Storage), err)
	}

	partitions := map[string][]LogRow{}
	for _, entry := range entries {
		partitions[string(entry.Status)] = append(partitions[string(entry.Status)], NewLogRow(entry))
	}
	statuses := make([]string, 0, len(partitions))
	for s := range partitions {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)

	var multiErr error
	var written []string
	for _, status := range statuses {
		rows := partitions[status]
		objectName := path.Join(e.cfg.BaseDir, "job="+jobID, "status="+status, "upload_log.parquet")
		buf, err := encode(rows, codec)
		if err != nil {
			multiErr = multierror.Append(multiErr, exception.NewJobError(moduleName, "", fmt.Sprintf("failed to encode partition %s", status), err))
			continue
		}
		if err := conn.Upload(ctx, "", objectName, buf, "application/octet-stream"); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewJobError(moduleName, "", fmt.Sprintf("failed to upload %s", objectName), err))
			continue
		}
		logger.Infof("Export: wrote %d %s entries of job %s to %s.", len(rows), status, jobID, objectName)
		written = append(written, objectName)
	}
	return written, multiErr
}

// encode writes rows as one Parquet file with a single row group.
func encode(rows []LogRow, codec parquet.CompressionCodec) (buf *bytes.Buffer, err error) {
	buf = new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(LogRow), int64(len(rows)))
	if err != nil {
		return nil, err
	}
	pw.CompressionType = codec
	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return nil, err
		}
	}
	defer func() {
		if r := recover(); r != nil {
			buf, err = nil, fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf, nil
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	}
	return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
}

// Module provides the LogExporter.
var Module = fx.Provide(NewLogExporter)
