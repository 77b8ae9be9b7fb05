package extract

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
)

// ErrNoData means the document carries nothing for the requested category.
// Consumers treat it as absence, not failure.
var ErrNoData = errors.New("no data for category")

// LayoutProvider is Stage 1: document -> text, pages and file metadata.
type LayoutProvider interface {
	Analyze(ctx context.Context, doc *entity.Document) (LayoutResult, error)
}

type LayoutResult struct {
	DocumentID    uuid.UUID
	Format        constants.DocumentFormat
	Text          string
	Pages         []PageLayout
	ExpectedPages int // from the document's own page count, 0 when unknown
	Metadata      Metadata
	Duration      time.Duration
}

// PageLayout is what the layout service reports per page.
type PageLayout struct {
	Number        int      `json:"number"`
	DPI           int      `json:"dpi"`
	WordCount     int      `json:"word_count"`
	OCRConfidence float64  `json:"ocr_confidence"` // 0..1
	Fonts         []string `json:"fonts,omitempty"`
	// JPEG quality estimate 0..100 and how many times the page was re-encoded; 0 when unknown.
	CompressionQuality int `json:"compression_quality,omitempty"`
	RecompressionCount int `json:"recompression_count,omitempty"`
}

// Metadata is the embedded file metadata (PDF info dictionary or EXIF).
type Metadata struct {
	Producer   string     `json:"producer,omitempty"`
	Creator    string     `json:"creator,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	ModifiedAt *time.Time `json:"modified_at,omitempty"`
}

// FieldProvider is Stage 2: document -> typed fields of one category.
type FieldProvider interface {
	Extract(ctx context.Context, documentID uuid.UUID, category constants.FieldCategory) (*Fields, error)
}

// Fields holds one category's extraction; only the matching member is set.
type Fields struct {
	DocumentID uuid.UUID
	Category   constants.FieldCategory
	Personal   *PersonalFields
	Business   *BusinessFields
	Financial  *FinancialFields
	Confidence float64 // model confidence 0..1, 0 when not reported
}

type PersonalFields struct {
	Name                 string
	Address              string
	IdentificationNumber string
	DateOfBirth          string // YYYY-MM-DD
}

type BusinessFields struct {
	BusinessName    string
	EIN             string
	BusinessAddress string
}

type FinancialFields struct {
	AccountNumbers []string
	Amounts        []decimal.Decimal
}

// Present lists the non-empty field names, using the names of constants.RequiredFields.
func (f *Fields) Present() []string {
	var out []string
	add := func(name string, ok bool) {
		if ok {
			out = append(out, name)
		}
	}
	if p := f.Personal; p != nil {
		add("name", p.Name != "")
		add("address", p.Address != "")
		add("identification_number", p.IdentificationNumber != "")
		add("date_of_birth", p.DateOfBirth != "")
	}
	if b := f.Business; b != nil {
		add("business_name", b.BusinessName != "")
		add("ein", b.EIN != "")
		add("business_address", b.BusinessAddress != "")
	}
	if fin := f.Financial; fin != nil {
		add("account_numbers", len(fin.AccountNumbers) > 0)
		add("amounts", len(fin.Amounts) > 0)
	}
	return out
}
