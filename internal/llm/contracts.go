package llm

import (
	"context"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

// CategoryFields is the normalized shape we want from the LLM. Only the members of the
// requested category are populated; everything is kept as text until the caller types it.
type CategoryFields struct {
	// personal
	Name                 string `json:"name,omitempty"`
	Address              string `json:"address,omitempty"`
	IdentificationNumber string `json:"identification_number,omitempty"`
	DateOfBirth          string `json:"date_of_birth,omitempty"` // YYYY-MM-DD

	// business
	BusinessName    string `json:"business_name,omitempty"`
	EIN             string `json:"ein,omitempty"`
	BusinessAddress string `json:"business_address,omitempty"`

	// financial
	AccountNumbers []string `json:"account_numbers,omitempty"`
	Amounts        []string `json:"amounts,omitempty"` // decimal strings

	ModelConfidence float32 `json:"confidence,omitempty"` // optional (0..1)
}

// IsEmpty reports whether the model found nothing for the category.
func (f CategoryFields) IsEmpty() bool {
	return f.Name == "" && f.Address == "" && f.IdentificationNumber == "" && f.DateOfBirth == "" &&
		f.BusinessName == "" && f.EIN == "" && f.BusinessAddress == "" &&
		len(f.AccountNumbers) == 0 && len(f.Amounts) == 0
}

type ExtractRequest struct {
	Text         string
	Category     constants.FieldCategory
	DocumentType constants.DocumentType
	FilenameHint string
}

// FieldExtractor is the interface the extraction service depends on.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, req ExtractRequest) (CategoryFields, []byte /*rawJSON*/, error)
}
