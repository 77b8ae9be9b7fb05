package inconsistency

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
	"github.com/joseph-ayodele/loan-docintel/internal/llm"
)

// rule is the inconsistency a conflicting field produces.
type rule struct {
	kind       constants.InconsistencyType
	severity   constants.Severity
	confidence float64
}

var rules = map[string]rule{
	"identification_number": {constants.IDNumberMismatch, constants.SeverityCritical, 0.95},
	"name":                  {constants.NameMismatch, constants.SeverityHigh, 0.9},
	"address":               {constants.AddressMismatch, constants.SeverityMedium, 0.85},
	"date_of_birth":         {constants.DateMismatch, constants.SeverityHigh, 0.85},
	"business_name":         {constants.BusinessInfoConflict, constants.SeverityHigh, 0.9},
	"ein":                   {constants.BusinessInfoConflict, constants.SeverityHigh, 0.9},
	"business_address":      {constants.AddressMismatch, constants.SeverityMedium, 0.85},
	"account_numbers":       {constants.MissingCrossReference, constants.SeverityMedium, 0.8},
}

var amountTolerance = decimal.RequireFromString(AmountTolerance)

// pair accumulates one comparison. Only fields both documents carry are compared.
type pair struct {
	a, b        DocumentFields
	weight      float64
	compared    int
	matching    []string
	conflicting []string
	found       []Inconsistency
}

// Compare runs every unordered pair of documents in input order.
func Compare(docs []DocumentFields) ([]DocumentComparison, []Inconsistency) {
	var (
		comparisons []DocumentComparison
		found       []Inconsistency
	)
	for i := 0; i < len(docs); i++ {
		for j := i + 1; j < len(docs); j++ {
			c, incs := compareDocuments(docs[i], docs[j])
			comparisons = append(comparisons, c)
			found = append(found, incs...)
		}
	}
	return comparisons, found
}

func compareDocuments(a, b DocumentFields) (DocumentComparison, []Inconsistency) {
	p := &pair{a: a, b: b}
	p.comparePersonal()
	p.compareBusiness()
	p.compareFinancial()

	cmp := DocumentComparison{
		DocumentA:         a.DocumentID,
		DocumentB:         b.DocumentID,
		MatchingFields:    p.matching,
		ConflictingFields: p.conflicting,
	}
	if p.compared > 0 {
		cmp.Similarity = p.weight / float64(p.compared)
	}
	return cmp, p.found
}

func (p *pair) comparePersonal() {
	fa, fb := p.a.Personal, p.b.Personal
	if fa == nil || fb == nil || fa.Personal == nil || fb.Personal == nil {
		return
	}
	x, y := fa.Personal, fb.Personal
	p.fuzzy("name", x.Name, y.Name, NameThreshold, fa, fb)
	p.fuzzy("address", x.Address, y.Address, AddressThreshold, fa, fb)
	p.exactDigits("identification_number", x.IdentificationNumber, y.IdentificationNumber, fa, fb)
	if x.DateOfBirth != "" && y.DateOfBirth != "" {
		if x.DateOfBirth == y.DateOfBirth {
			p.match("date_of_birth", 1)
		} else {
			p.conflict("date_of_birth", x.DateOfBirth, y.DateOfBirth, fa, fb)
		}
	}
}

func (p *pair) compareBusiness() {
	fa, fb := p.a.Business, p.b.Business
	if fa == nil || fb == nil || fa.Business == nil || fb.Business == nil {
		return
	}
	x, y := fa.Business, fb.Business
	p.fuzzy("business_name", x.BusinessName, y.BusinessName, NameThreshold, fa, fb)
	p.exactDigits("ein", x.EIN, y.EIN, fa, fb)
	p.fuzzy("business_address", x.BusinessAddress, y.BusinessAddress, AddressThreshold, fa, fb)
}

func (p *pair) compareFinancial() {
	fa, fb := p.a.Financial, p.b.Financial
	if fa == nil || fb == nil || fa.Financial == nil || fb.Financial == nil {
		return
	}
	x, y := fa.Financial, fb.Financial

	if len(x.AccountNumbers) > 0 && len(y.AccountNumbers) > 0 {
		switch {
		case anyPair(x.AccountNumbers, y.AccountNumbers, digitsEqual):
			p.match("account_numbers", 1)
		case anyPair(x.AccountNumbers, y.AccountNumbers, func(s, t string) bool {
			l := lastFour(s)
			return l != "" && l == lastFour(t)
		}):
			p.match("account_numbers", 0.5)
		default:
			p.conflict("account_numbers", strings.Join(x.AccountNumbers, ", "), strings.Join(y.AccountNumbers, ", "), fa, fb)
		}
	}

	// an amount mismatch lowers similarity but raises no finding
	if len(x.Amounts) > 0 && len(y.Amounts) > 0 {
		p.compared++
		if amountsOverlap(x.Amounts, y.Amounts) {
			p.weight++
			p.matching = append(p.matching, "amounts")
		} else {
			p.conflicting = append(p.conflicting, "amounts")
		}
	}
}

func (p *pair) fuzzy(field, va, vb string, threshold float64, fa, fb *extract.Fields) {
	if strings.TrimSpace(va) == "" || strings.TrimSpace(vb) == "" {
		return
	}
	if sim := Similarity(va, vb); sim > threshold {
		p.match(field, 1)
		return
	}
	p.conflict(field, va, vb, fa, fb)
}

func (p *pair) exactDigits(field, va, vb string, fa, fb *extract.Fields) {
	if llm.DigitsOnly(va) == "" || llm.DigitsOnly(vb) == "" {
		return
	}
	if digitsEqual(va, vb) {
		p.match(field, 1)
		return
	}
	p.conflict(field, va, vb, fa, fb)
}

func (p *pair) match(field string, weight float64) {
	p.compared++
	p.weight += weight
	p.matching = append(p.matching, field)
}

func (p *pair) conflict(field, va, vb string, fa, fb *extract.Fields) {
	p.compared++
	p.conflicting = append(p.conflicting, field)

	r, ok := rules[field]
	if !ok {
		return
	}
	a, b := p.a.DocumentID, p.b.DocumentID
	p.found = append(p.found, Inconsistency{
		Type:              r.kind,
		Severity:          r.severity,
		Field:             field,
		Description:       describe(field, a, b, va, vb),
		AffectedDocuments: []uuid.UUID{a, b},
		ConflictingValues: []entity.ConflictingValue{
			{DocumentID: a, Field: field, Value: va, Confidence: valueConfidence(fa, r.confidence)},
			{DocumentID: b, Field: field, Value: vb, Confidence: valueConfidence(fb, r.confidence)},
		},
		Evidence:   evidenceText(field, va, vb),
		Confidence: r.confidence,
	})
}

func evidenceText(field, va, vb string) string {
	switch field {
	case "name", "address", "business_name", "business_address":
		return fmt.Sprintf("similarity %.2f between %q and %q", Similarity(va, vb), va, vb)
	case "identification_number", "ein", "account_numbers":
		return fmt.Sprintf("digits %s vs %s", llm.DigitsOnly(va), llm.DigitsOnly(vb))
	}
	return fmt.Sprintf("%q vs %q", va, vb)
}

// valueConfidence prefers the extractor's own confidence when it reported one.
func valueConfidence(f *extract.Fields, fallback float64) float64 {
	if f != nil && f.Confidence > 0 {
		return f.Confidence
	}
	return fallback
}

func anyPair(xs, ys []string, eq func(string, string) bool) bool {
	for _, x := range xs {
		for _, y := range ys {
			if eq(x, y) {
				return true
			}
		}
	}
	return false
}

func amountsOverlap(xs, ys []decimal.Decimal) bool {
	for _, x := range xs {
		for _, y := range ys {
			if x.Sub(y).Abs().LessThan(amountTolerance) {
				return true
			}
		}
	}
	return false
}
