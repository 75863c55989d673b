package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthlens/healthlens/internal/catalog"
	"github.com/healthlens/healthlens/internal/config"
	"github.com/healthlens/healthlens/internal/ingest"
	"github.com/healthlens/healthlens/internal/observability"
	"github.com/healthlens/healthlens/internal/query"
	"github.com/healthlens/healthlens/internal/schema"
	"github.com/healthlens/healthlens/internal/storage"
	"github.com/healthlens/healthlens/internal/warehouse"
)

// exportRowLimit bounds how many rows a single export can stream back out.
const exportRowLimit = 1_000_000

type datasetResponse struct {
	Name             string          `json:"name"`
	OriginalFilename string          `json:"original_filename"`
	Format           string          `json:"format"`
	RowCount         int64           `json:"row_count"`
	ColumnCount      int             `json:"column_count"`
	ContentHash      string          `json:"content_hash"`
	Columns          []schema.Column `json:"columns,omitempty"`
	ArchivePath      string          `json:"archive_path,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func handleUploadDataset(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	if err := requireRole(r, "uploader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, cfg.Upload.MaxBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UPLOAD_INVALID", "multipart field \"file\" is required", false, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = file.Close() }()

	format, err := ingest.Format(header.Filename)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), false, nil)
		return
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UPLOAD_READ_FAILED", "could not read uploaded file", false, map[string]any{"details": err.Error()})
		return
	}

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = ingest.DatasetNameFromFilename(header.Filename)
	} else {
		name = ingest.CleanIdentifier(name)
	}

	priorArchiveKey := ""
	if existing, err := deps.Catalog.GetDataset(r.Context(), session.SessionID, name); err == nil {
		priorArchiveKey = existing.ArchivePath
	} else if errors.Is(err, catalog.ErrNotFound) {
		// The limit only gates new names; replacement uploads always go
		// through.
		count, err := deps.Catalog.CountDatasets(r.Context(), session.SessionID)
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "UPLOAD_FAILED", "could not check dataset count", true, map[string]any{"details": err.Error()})
			return
		}
		if cfg.Upload.MaxDatasets > 0 && count >= cfg.Upload.MaxDatasets {
			writeError(r.Context(), w, http.StatusConflict, "DATASET_LIMIT_REACHED", fmt.Sprintf("session already holds %d datasets", count), false, nil)
			return
		}
	}

	table, err := ingest.Parse(header.Filename, bytes.NewReader(raw), ingest.Options{TypeInferLimit: cfg.Upload.TypeInferLimit})
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UPLOAD_PARSE_FAILED", err.Error(), false, nil)
		return
	}

	warehouseColumns := make([]warehouse.Column, len(table.Columns))
	schemaColumns := make([]schema.Column, len(table.Columns))
	for i, column := range table.Columns {
		warehouseColumns[i] = warehouse.Column{Name: column.Name, Type: column.Type}
		schemaColumns[i] = schema.Column{Name: column.Name, Type: column.Type}
	}
	if err := deps.Warehouse.CreateDataset(r.Context(), session.SessionID, name, warehouseColumns, table.Rows); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "UPLOAD_LOAD_FAILED", "could not load dataset into warehouse", true, map[string]any{"details": err.Error()})
		return
	}

	schemaJSON, err := schema.EncodeColumns(schemaColumns)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "UPLOAD_FAILED", "could not encode dataset schema", false, map[string]any{"details": err.Error()})
		return
	}

	hash := sha256.Sum256(raw)
	archivePath := archiveUpload(cfg, deps, r, session.SessionID, name, header.Filename, raw)

	dataset, err := deps.Catalog.UpsertDataset(r.Context(), catalog.UpsertDatasetInput{
		DatasetID:        uuid.NewString(),
		SessionID:        session.SessionID,
		Name:             name,
		OriginalFilename: header.Filename,
		Format:           format,
		RowCount:         int64(len(table.Rows)),
		ColumnCount:      len(table.Columns),
		ContentHash:      hex.EncodeToString(hash[:]),
		SchemaJSON:       schemaJSON,
		ArchivePath:      archivePath,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "UPLOAD_FAILED", "could not record dataset", true, map[string]any{"details": err.Error()})
		return
	}

	if priorArchiveKey != "" && priorArchiveKey != archivePath {
		deleteArchivedObject(deps, r, session.SessionID, priorArchiveKey)
	}
	observability.ObserveUpload(format, len(table.Rows))
	writeJSON(w, http.StatusCreated, toDatasetResponse(dataset, schemaColumns))
}

// archiveUpload stores the raw upload bytes when archiving is enabled.
// Failures are logged and swallowed; the upload itself already succeeded.
func archiveUpload(cfg config.Config, deps Dependencies, r *http.Request, sessionID, name, filename string, raw []byte) string {
	if !cfg.Archive.Enabled || deps.Archive == nil {
		return ""
	}
	extension := strings.TrimPrefix(strings.ToLower(filenameExt(filename)), ".")
	key, err := storage.BuildUploadArchivePath(sessionID, name, uuid.NewString(), extension)
	if err == nil {
		_, err = deps.Archive.Put(r.Context(), key, bytes.NewReader(raw), int64(len(raw)), storage.PutOptions{ContentType: "application/octet-stream"})
	}
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.Warn("archive upload", "session_id", sessionID, "dataset", name, "error", err)
		}
		return ""
	}
	return key
}

func filenameExt(filename string) string {
	if i := strings.LastIndex(filename, "."); i >= 0 {
		return filename[i:]
	}
	return ""
}

func handleListDatasets(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	datasets, err := deps.Catalog.ListDatasets(r.Context(), session.SessionID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_LIST_FAILED", "could not list datasets", true, map[string]any{"details": err.Error()})
		return
	}
	responses := make([]datasetResponse, 0, len(datasets))
	for _, dataset := range datasets {
		responses = append(responses, toDatasetResponse(dataset, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": responses})
}

func handleGetDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	dataset, err := deps.Catalog.GetDataset(r.Context(), session.SessionID, r.PathValue("name"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_LOOKUP_FAILED", "could not load dataset", true, map[string]any{"details": err.Error()})
		return
	}
	columns, err := schema.DecodeColumns(dataset.SchemaJSON)
	if err != nil {
		columns = nil
	}
	writeJSON(w, http.StatusOK, toDatasetResponse(dataset, columns))
}

func handleDeleteDataset(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	if err := requireRole(r, "uploader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	name := r.PathValue("name")
	// The catalog row is the only record of the archive key, so capture it
	// before the delete.
	archiveKey := ""
	if dataset, err := deps.Catalog.GetDataset(r.Context(), session.SessionID, name); err == nil {
		archiveKey = dataset.ArchivePath
	}
	deleted, err := deps.Catalog.DeleteDataset(r.Context(), session.SessionID, name)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_DELETE_FAILED", "could not delete dataset", true, map[string]any{"details": err.Error()})
		return
	}
	if !deleted {
		writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset does not exist", false, nil)
		return
	}
	if err := deps.Warehouse.DropDataset(r.Context(), session.SessionID, name); err != nil && deps.Logger != nil {
		deps.Logger.Warn("drop dataset table", "session_id", session.SessionID, "dataset", name, "error", err)
	}
	deleteArchivedObject(deps, r, session.SessionID, archiveKey)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "name": name})
}

// deleteArchivedObject removes an archived upload best effort. The catalog
// row is already gone, so a failed object delete only leaves an orphan.
func deleteArchivedObject(deps Dependencies, r *http.Request, sessionID, key string) {
	if deps.Archive == nil || key == "" {
		return
	}
	if err := deps.Archive.Delete(r.Context(), key); err != nil && deps.Logger != nil {
		deps.Logger.Warn("delete archived upload", "session_id", sessionID, "key", key, "error", err)
	}
}

// handleDatasetArchive streams the original upload bytes back out of the
// archive store.
func handleDatasetArchive(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	if err := requireRole(r, "reader"); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	name := r.PathValue("name")
	dataset, err := deps.Catalog.GetDataset(r.Context(), session.SessionID, name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_LOOKUP_FAILED", "could not load dataset", true, map[string]any{"details": err.Error()})
		return
	}
	if deps.Archive == nil || dataset.ArchivePath == "" {
		writeError(r.Context(), w, http.StatusNotFound, "ARCHIVE_NOT_AVAILABLE", "no archived upload exists for this dataset", false, nil)
		return
	}

	body, err := deps.Archive.Get(r.Context(), dataset.ArchivePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "ARCHIVE_NOT_AVAILABLE", "archived upload is no longer present", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_READ_FAILED", "could not read archived upload", true, map[string]any{"details": err.Error()})
		return
	}
	defer func() { _ = body.Close() }()

	filename := dataset.OriginalFilename
	if filename == "" {
		filename = name + "." + dataset.Format
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil && deps.Logger != nil {
		// Headers are already out; the best we can do is log.
		deps.Logger.Warn("stream archived upload", "session_id", session.SessionID, "dataset", name, "error", err)
	}
}

func handleExportDataset(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	session, err := sessionFromRequest(deps, r)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}

	name := r.PathValue("name")
	dataset, err := deps.Catalog.GetDataset(r.Context(), session.SessionID, name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(r.Context(), w, http.StatusNotFound, "DATASET_NOT_FOUND", "dataset does not exist", false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "DATASET_LOOKUP_FAILED", "could not load dataset", true, map[string]any{"details": err.Error()})
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}

	result, err := deps.QueryEngine.Execute(r.Context(), query.Request{
		SessionID: session.SessionID,
		SQL:       fmt.Sprintf("SELECT * FROM %q", name),
		RowLimit:  exportRowLimit,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "could not read dataset", true, map[string]any{"details": err.Error()})
		return
	}

	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".csv"))
		writeCSVExport(w, result)
	case "json":
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".json"))
		writeJSONExport(w, result)
	case "parquet":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".parquet"))
		if err := writeParquetExport(w, dataset, result); err != nil {
			// Headers are already out; the best we can do is log.
			if deps.Logger != nil {
				deps.Logger.Error("parquet export", "dataset", name, "error", err)
			}
		}
	default:
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_FORMAT", fmt.Sprintf("unsupported export format %q", format), false, nil)
	}
}

func writeCSVExport(w io.Writer, result query.Result) {
	writer := csv.NewWriter(w)
	_ = writer.Write(result.Columns)
	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && row[i] != nil {
				record[i] = exportCellString(row[i])
			}
		}
		_ = writer.Write(record)
	}
	writer.Flush()
}

func writeJSONExport(w http.ResponseWriter, result query.Result) {
	records := make([]map[string]any, 0, len(result.Rows))
	for _, row := range result.Rows {
		record := make(map[string]any, len(result.Columns))
		for i, column := range result.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	writeJSON(w, http.StatusOK, records)
}

func writeParquetExport(w io.Writer, dataset catalog.Dataset, result query.Result) error {
	columns, err := schema.DecodeColumns(dataset.SchemaJSON)
	if err != nil {
		return fmt.Errorf("decode dataset schema: %w", err)
	}
	types := make(map[string]string, len(columns))
	for _, column := range columns {
		types[column.Name] = column.Type
	}

	table := ingest.Table{Rows: result.Rows}
	for i, column := range result.Columns {
		columnType := types[column]
		if columnType == "" {
			columnType = result.ColumnTypes[i]
		}
		table.Columns = append(table.Columns, ingest.Column{Name: column, Type: columnType})
	}
	return ingest.WriteParquet(w, table)
}

func exportCellString(value any) string {
	switch typed := value.(type) {
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	case float64:
		raw, _ := json.Marshal(typed)
		return string(raw)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func toDatasetResponse(dataset catalog.Dataset, columns []schema.Column) datasetResponse {
	return datasetResponse{
		Name:             dataset.Name,
		OriginalFilename: dataset.OriginalFilename,
		Format:           dataset.Format,
		RowCount:         dataset.RowCount,
		ColumnCount:      dataset.ColumnCount,
		ContentHash:      dataset.ContentHash,
		Columns:          columns,
		ArchivePath:      dataset.ArchivePath,
		CreatedAt:        dataset.CreatedAt,
		UpdatedAt:        dataset.UpdatedAt,
	}
}
