package documents

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const documentColumns = "id, owner_id, original_filename, stored_filename, file_path, ocr_pdf_path, mime_type, file_size, content_hash, kind, category, display_name, document_date, deadline, storage_year, amount_cents, currency, confidence, importance_score, extracted_text, extraction_method, summary, keywords_json, extracted_data, is_duplicate, duplicate_of_id, similarity_score, status, error_message, progress_stage, created_at, updated_at"

const dateLayout = "2006-01-02"

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		doc              Document
		ocrPDFPath       sql.NullString
		mimeType         sql.NullString
		contentHash      sql.NullString
		kind             string
		category         sql.NullString
		displayName      sql.NullString
		documentDate     sql.NullString
		deadline         sql.NullString
		storageYear      sql.NullInt64
		amountCents      sql.NullInt64
		currency         sql.NullString
		extractedText    sql.NullString
		extractionMethod sql.NullString
		summary          sql.NullString
		keywordsJSON     sql.NullString
		extractedData    sql.NullString
		isDuplicate      int64
		duplicateOfID    sql.NullInt64
		similarityScore  sql.NullFloat64
		status           string
		errorMessage     sql.NullString
		progressStage    sql.NullString
		createdRaw       string
		updatedRaw       string
	)

	if err := scanner.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.OriginalFilename,
		&doc.StoredFilename,
		&doc.FilePath,
		&ocrPDFPath,
		&mimeType,
		&doc.FileSize,
		&contentHash,
		&kind,
		&category,
		&displayName,
		&documentDate,
		&deadline,
		&storageYear,
		&amountCents,
		&currency,
		&doc.Confidence,
		&doc.ImportanceScore,
		&extractedText,
		&extractionMethod,
		&summary,
		&keywordsJSON,
		&extractedData,
		&isDuplicate,
		&duplicateOfID,
		&similarityScore,
		&status,
		&errorMessage,
		&progressStage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	doc.OCRPDFPath = ocrPDFPath.String
	doc.MimeType = mimeType.String
	doc.ContentHash = contentHash.String
	doc.Kind = ParseKind(kind)
	doc.Category = category.String
	doc.DisplayName = displayName.String
	doc.DocumentDate = parseDate(documentDate)
	doc.Deadline = parseDate(deadline)
	if storageYear.Valid {
		year := int(storageYear.Int64)
		doc.StorageYear = &year
	}
	if amountCents.Valid {
		amount := Amount(amountCents.Int64)
		doc.Amount = &amount
	}
	doc.Currency = currency.String
	doc.ExtractedText = extractedText.String
	doc.ExtractionMethod = extractionMethod.String
	doc.Summary = summary.String
	if keywordsJSON.Valid && keywordsJSON.String != "" {
		_ = json.Unmarshal([]byte(keywordsJSON.String), &doc.Keywords)
	}
	doc.ExtractedData = extractedData.String
	doc.IsDuplicate = isDuplicate != 0
	if duplicateOfID.Valid {
		id := duplicateOfID.Int64
		doc.DuplicateOfID = &id
	}
	if similarityScore.Valid {
		score := similarityScore.Float64
		doc.SimilarityScore = &score
	}
	doc.Status = Status(status)
	doc.ErrorMessage = errorMessage.String
	doc.ProgressStage = progressStage.String
	if created, err := parseTimeString(createdRaw); err == nil {
		doc.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		doc.UpdatedAt = updated
	}
	return &doc, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableDate(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.Format(dateLayout)
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableFloat(value *float64) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableAmount(value *Amount) any {
	if value == nil {
		return nil
	}
	return int64(*value)
}

func nullableKeywords(keywords []string) any {
	if len(keywords) == 0 {
		return nil
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return nil
	}
	return string(data)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseDate(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, value.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
