package documents

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status represents the processing lifecycle of a document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no worker will touch the document again.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus converts a user supplied status name.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusProcessing:
		return StatusProcessing, true
	case StatusCompleted:
		return StatusCompleted, true
	case StatusFailed:
		return StatusFailed, true
	}
	return "", false
}

// Kind is the closed set of document types.
type Kind string

const (
	KindInvoice  Kind = "invoice"
	KindLetter   Kind = "letter"
	KindContract Kind = "contract"
	KindReceipt  Kind = "receipt"
	KindOther    Kind = "other"
)

// Kinds lists every document type in display order.
var Kinds = []Kind{KindInvoice, KindLetter, KindContract, KindReceipt, KindOther}

// ParseKind maps free text onto a Kind, defaulting to KindOther.
func ParseKind(value string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case KindInvoice:
		return KindInvoice
	case KindLetter:
		return KindLetter
	case KindContract:
		return KindContract
	case KindReceipt:
		return KindReceipt
	default:
		return KindOther
	}
}

// GeneralCategory is the analysis fallback category. Archive queries treat it
// like an empty category.
const GeneralCategory = "General"

// Amount is a monetary value with two decimal places, stored in cents.
type Amount int64

// ParseAmount parses the canonical "1234.50" form.
func ParseAmount(value string) (Amount, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return AmountFromFloat(f), nil
}

// AmountFromFloat rounds to the nearest cent.
func AmountFromFloat(f float64) Amount {
	if f < 0 {
		return Amount(f*100 - 0.5)
	}
	return Amount(f*100 + 0.5)
}

// Float returns the amount in currency units.
func (a Amount) Float() float64 { return float64(a) / 100 }

func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

// Document is a single uploaded file and everything the pipeline learned about it.
type Document struct {
	ID               int64
	OwnerID          int64
	OriginalFilename string
	StoredFilename   string
	FilePath         string
	OCRPDFPath       string
	MimeType         string
	FileSize         int64
	ContentHash      string

	Kind        Kind
	Category    string
	DisplayName string

	DocumentDate *time.Time
	Deadline     *time.Time
	StorageYear  *int

	Amount   *Amount
	Currency string

	Confidence      float64
	ImportanceScore float64

	ExtractedText    string
	ExtractionMethod string
	Summary          string
	Keywords         []string
	ExtractedData    string

	IsDuplicate     bool
	DuplicateOfID   *int64
	SimilarityScore *float64

	Status        Status
	ErrorMessage  string
	ProgressStage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDocument carries the fields known at upload time.
type NewDocument struct {
	OwnerID          int64
	OriginalFilename string
	StoredFilename   string
	FilePath         string
	MimeType         string
	FileSize         int64
}

// Chunk is a slice of extracted text with its embedding.
type Chunk struct {
	ID         int64
	DocumentID int64
	Index      int
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
}

// Match is the best similarity hit for an embedding query.
type Match struct {
	DocumentID int64
	Score      float64
}

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	OwnerID  int64
	Statuses []Status
	Year     int
	Category string
	Kind     Kind
	Limit    int
	Offset   int
	// Unclassified selects documents with an empty or General category and
	// takes precedence over Category.
	Unclassified bool
}

// YearKindCount is one row of the per-year type breakdown.
type YearKindCount struct {
	Year     int
	Category string
	Kind     Kind
	Count    int
}

// StatusCount is one row of the status summary.
type StatusCount struct {
	Status Status
	Count  int
}
