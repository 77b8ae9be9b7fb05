package llm

import (
	"strings"

	"github.com/joseph-ayodele/loan-docintel/constants"
)

const maxPromptText = 6000

// BuildSystemPrompt composes the system message for one field category with
// strict-but-practical formatting rules.
func BuildSystemPrompt(req ExtractRequest) string {
	parts := []string{
		"You extract data from loan application documents. Return ONLY JSON that matches the provided JSON Schema.",
		"Extract only the " + string(req.Category) + " fields: " + categoryGuide(req.Category),
	}
	if req.DocumentType != "" && req.DocumentType != constants.OtherDocument {
		parts = append(parts, "The document is a "+humanize(string(req.DocumentType))+".")
	}
	parts = append(parts,
		"Copy identifiers exactly as printed, including masking characters.",
		"Use ISO-8601 dates (YYYY-MM-DD).",
		"Amounts are plain decimal strings without currency symbols or thousands separators.",
		"Never output null. If a field is not present, omit it. If nothing applies, return {}.",
	)
	return strings.Join(parts, " ")
}

// BuildUserPrompt packages the filename hint and the layout text.
func BuildUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	if filename := strings.TrimSpace(req.FilenameHint); filename != "" {
		b.WriteString("Filename: ")
		b.WriteString(filename)
		b.WriteString("\n")
	}
	text := strings.TrimSpace(req.Text)
	b.WriteString("\nDocument text:\n")
	if len(text) > maxPromptText {
		b.WriteString(text[:maxPromptText])
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}

func categoryGuide(c constants.FieldCategory) string {
	switch c {
	case constants.FieldCategoryPersonal:
		return "'name' (the applicant or account holder), 'address' (residential), " +
			"'identification_number' (SSN, driver's license or passport number), 'date_of_birth'."
	case constants.FieldCategoryBusiness:
		return "'business_name' (legal entity name), 'ein' (employer identification number), " +
			"'business_address'."
	case constants.FieldCategoryFinancial:
		return "'account_numbers' (every bank or loan account number shown), " +
			"'amounts' (balances, deposits, gross and net pay, reported income)."
	}
	return "none."
}

func humanize(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "_", " "))
}
