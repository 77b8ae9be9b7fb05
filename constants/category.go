package constants

import (
	"strings"
)

// FieldCategory is a group of fields the extraction provider can return for a document.
type FieldCategory string

const (
	FieldCategoryFinancial FieldCategory = "financial"
	FieldCategoryPersonal  FieldCategory = "personal"
	FieldCategoryBusiness  FieldCategory = "business"
)

var FieldCategories = []FieldCategory{FieldCategoryFinancial, FieldCategoryPersonal, FieldCategoryBusiness}

// DocumentType is the kind of loan document uploaded.
type DocumentType string

const (
	BankStatement   DocumentType = "BANK_STATEMENT"
	PayStub         DocumentType = "PAY_STUB"
	TaxReturn       DocumentType = "TAX_RETURN"
	Identification  DocumentType = "IDENTIFICATION"
	BusinessLicense DocumentType = "BUSINESS_LICENSE"
	UtilityBill     DocumentType = "UTILITY_BILL"
	LoanApplication DocumentType = "LOAN_APPLICATION"
	OtherDocument   DocumentType = "OTHER"
)

var allDocumentTypes = []DocumentType{
	BankStatement,
	PayStub,
	TaxReturn,
	Identification,
	BusinessLicense,
	UtilityBill,
	LoanApplication,
	OtherDocument,
}

// DefaultRequiredDocumentTypes is what an application needs before it is considered complete.
var DefaultRequiredDocumentTypes = []DocumentType{BankStatement, Identification, PayStub}

func DocumentTypesAsStrings() []string {
	result := make([]string, len(allDocumentTypes))
	for i, t := range allDocumentTypes {
		result[i] = string(t)
	}
	return result
}

// CanonicalizeDocumentType maps free-form labels onto a DocumentType.
func CanonicalizeDocumentType(input string) (DocumentType, bool) {
	if input == "" {
		return OtherDocument, false
	}

	normalized := normalizeKey(input)

	synonyms := map[string]DocumentType{
		"statement":        BankStatement,
		"bank statement":   BankStatement,
		"paystub":          PayStub,
		"pay stub":         PayStub,
		"payslip":          PayStub,
		"w2":               TaxReturn,
		"1040":             TaxReturn,
		"drivers license":  Identification,
		"driver's license": Identification,
		"passport":         Identification,
		"id":               Identification,
		"license":          BusinessLicense,
		"utility":          UtilityBill,
		"application":      LoanApplication,
	}
	if t, ok := synonyms[normalized]; ok {
		return t, true
	}

	for _, t := range allDocumentTypes {
		if normalized == strings.ToLower(string(t)) {
			return t, true
		}
	}
	return OtherDocument, false
}

// RequiredFields lists the extracted fields each document type is expected to carry.
// Missing ones feed the "missing information" risk category.
func RequiredFields(t DocumentType) []string {
	switch t {
	case BankStatement:
		return []string{"name", "address", "account_numbers", "amounts"}
	case PayStub:
		return []string{"name", "amounts"}
	case TaxReturn:
		return []string{"name", "identification_number", "amounts"}
	case Identification:
		return []string{"name", "identification_number", "date_of_birth"}
	case BusinessLicense:
		return []string{"business_name", "ein"}
	case UtilityBill:
		return []string{"name", "address"}
	case LoanApplication:
		return []string{"name", "address", "identification_number"}
	}
	return []string{"name"}
}
