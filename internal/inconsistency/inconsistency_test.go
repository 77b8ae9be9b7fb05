package inconsistency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/extract"
)

type listDocs struct {
	docs []*entity.Document
	err  error
}

func (l listDocs) ListByApplication(context.Context, uuid.UUID) ([]*entity.Document, error) {
	return l.docs, l.err
}

type fieldKey struct {
	id       uuid.UUID
	category constants.FieldCategory
}

type mapProvider struct {
	mu     sync.Mutex
	fields map[fieldKey]*extract.Fields
	errs   map[uuid.UUID]error
	calls  int
}

func (m *mapProvider) Extract(_ context.Context, id uuid.UUID, category constants.FieldCategory) (*extract.Fields, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := m.errs[id]; err != nil {
		return nil, err
	}
	f, ok := m.fields[fieldKey{id, category}]
	if !ok {
		return nil, extract.ErrNoData
	}
	return f, nil
}

func personal(id uuid.UUID, name, idNumber string) *extract.Fields {
	return &extract.Fields{
		DocumentID: id,
		Category:   constants.FieldCategoryPersonal,
		Personal:   &extract.PersonalFields{Name: name, IdentificationNumber: idNumber},
	}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newApp(n int) []*entity.Document {
	app := uuid.New()
	docs := make([]*entity.Document, n)
	for i := range docs {
		docs[i] = &entity.Document{ID: uuid.New(), ApplicationID: app}
	}
	return docs
}

func TestSimilarity(t *testing.T) {
	pairs := [][2]string{
		{"John Smith", "Jon Smith"},
		{"123 Main St", "123 Main Street"},
		{"", "abc"},
		{"Acme LLC", "ACME, L.L.C."},
	}
	for _, p := range pairs {
		assert.Equal(t, Similarity(p[0], p[1]), Similarity(p[1], p[0]), "symmetric for %q", p)
		assert.Equal(t, 1.0, Similarity(p[0], p[0]))
	}
	assert.InDelta(t, 0.9, Similarity("John Smith", "Jon Smith"), 1e-9)
	assert.Equal(t, 1.0, Similarity("JOHN  smith", "john smith"))
	assert.Equal(t, 0.0, Similarity("", "abc"))
}

func TestOverallRiskScore(t *testing.T) {
	assert.Equal(t, 0.0, OverallRiskScore(nil))
	assert.Equal(t, 40.0, OverallRiskScore([]Inconsistency{{Severity: constants.SeverityCritical, Confidence: 1.0}}))
	assert.InDelta(t, 25.0, OverallRiskScore([]Inconsistency{
		{Severity: constants.SeverityHigh, Confidence: 1.0},
		{Severity: constants.SeverityMedium, Confidence: 1.0},
	}), 1e-9)
}

func TestDetect_NameMismatchWithSameSSN(t *testing.T) {
	docs := newApp(2)
	a, b := docs[0].ID, docs[1].ID
	prov := &mapProvider{fields: map[fieldKey]*extract.Fields{
		{a, constants.FieldCategoryPersonal}: personal(a, "John Smith", "123-45-6789"),
		{b, constants.FieldCategoryPersonal}: personal(b, "Jon Smith", "123-45-6789"),
	}}
	det := NewDetector(listDocs{docs: docs}, prov, quietLogger())

	res, err := det.DetectInconsistencies(context.Background(), docs[0].ApplicationID)
	require.NoError(t, err)

	require.Len(t, res.Inconsistencies, 1)
	inc := res.Inconsistencies[0]
	assert.Equal(t, constants.NameMismatch, inc.Type)
	assert.Equal(t, constants.SeverityHigh, inc.Severity)
	assert.Equal(t, 0.9, inc.Confidence)
	assert.Equal(t, []uuid.UUID{a, b}, inc.AffectedDocuments)
	require.Len(t, inc.ConflictingValues, 2)
	assert.Equal(t, "Jon Smith", inc.ConflictingValues[1].Value)

	require.Len(t, res.DocumentComparisons, 1)
	cmp := res.DocumentComparisons[0]
	assert.Equal(t, []string{"identification_number"}, cmp.MatchingFields)
	assert.Equal(t, []string{"name"}, cmp.ConflictingFields)
	assert.Equal(t, 0.5, cmp.Similarity)
	assert.InDelta(t, 27.0, res.OverallRiskScore, 1e-9)
	assert.Equal(t, 6, prov.calls)
}

func TestDetect_IDNumberRules(t *testing.T) {
	docs := newApp(3)
	a, b, c := docs[0].ID, docs[1].ID, docs[2].ID
	prov := &mapProvider{fields: map[fieldKey]*extract.Fields{
		{a, constants.FieldCategoryPersonal}: personal(a, "Mary Jones", "123-45-6789"),
		{b, constants.FieldCategoryPersonal}: personal(b, "Mary Jones", "123456789"),
		{c, constants.FieldCategoryPersonal}: personal(c, "Mary Jones", "987-65-4321"),
	}}
	res, err := NewDetector(listDocs{docs: docs}, prov, quietLogger()).
		DetectInconsistencies(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Len(t, res.DocumentComparisons, 3)
	var mismatched [][]uuid.UUID
	for _, inc := range res.Inconsistencies {
		require.Equal(t, constants.IDNumberMismatch, inc.Type)
		assert.Equal(t, constants.SeverityCritical, inc.Severity)
		assert.Equal(t, 0.95, inc.Confidence)
		mismatched = append(mismatched, inc.AffectedDocuments)
	}
	assert.ElementsMatch(t, [][]uuid.UUID{{a, c}, {b, c}}, mismatched)
}

func TestDetect_FewerThanTwoDocuments(t *testing.T) {
	prov := &mapProvider{}
	res, err := NewDetector(listDocs{docs: newApp(1)}, prov, quietLogger()).
		DetectInconsistencies(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, res.Inconsistencies)
	assert.Empty(t, res.DocumentComparisons)
	assert.Equal(t, 0.0, res.OverallRiskScore)
	assert.Zero(t, prov.calls)
}

func TestDetect_ProviderFailureExcludesDocument(t *testing.T) {
	docs := newApp(3)
	a, b, c := docs[0].ID, docs[1].ID, docs[2].ID
	prov := &mapProvider{
		fields: map[fieldKey]*extract.Fields{
			{a, constants.FieldCategoryPersonal}: personal(a, "Ann Lee", ""),
			{b, constants.FieldCategoryPersonal}: personal(b, "Ann Lee", ""),
		},
		errs: map[uuid.UUID]error{c: errors.New("provider unavailable")},
	}
	res, err := NewDetector(listDocs{docs: docs}, prov, quietLogger()).
		DetectInconsistencies(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 2, res.DocumentsAnalyzed)
	assert.Equal(t, []uuid.UUID{c}, res.ExcludedDocuments)
	require.Len(t, res.DocumentComparisons, 1)
	assert.Equal(t, 1.0, res.DocumentComparisons[0].Similarity)
	assert.Empty(t, res.Inconsistencies)
}

func TestDetect_ListError(t *testing.T) {
	_, err := NewDetector(listDocs{err: errors.New("db down")}, &mapProvider{}, quietLogger()).
		DetectInconsistencies(context.Background(), uuid.New())
	require.Error(t, err)
}

func TestCompare_Financial(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	fin := func(id uuid.UUID, accounts []string, amounts ...string) *extract.Fields {
		f := &extract.FinancialFields{AccountNumbers: accounts}
		for _, s := range amounts {
			f.Amounts = append(f.Amounts, decimal.RequireFromString(s))
		}
		return &extract.Fields{DocumentID: id, Category: constants.FieldCategoryFinancial, Financial: f}
	}

	t.Run("last four only earns half credit", func(t *testing.T) {
		cmps, found := Compare([]DocumentFields{
			{DocumentID: a, Financial: fin(a, []string{"0001-2345-6789"})},
			{DocumentID: b, Financial: fin(b, []string{"****6789"})},
		})
		require.Len(t, cmps, 1)
		assert.Equal(t, 0.5, cmps[0].Similarity)
		assert.Empty(t, found)
	})

	t.Run("different accounts conflict", func(t *testing.T) {
		_, found := Compare([]DocumentFields{
			{DocumentID: a, Financial: fin(a, []string{"11112222"})},
			{DocumentID: b, Financial: fin(b, []string{"33334444"})},
		})
		require.Len(t, found, 1)
		assert.Equal(t, constants.MissingCrossReference, found[0].Type)
		assert.Equal(t, constants.SeverityMedium, found[0].Severity)
		assert.Equal(t, 0.8, found[0].Confidence)
	})

	t.Run("amounts within a cent match", func(t *testing.T) {
		cmps, found := Compare([]DocumentFields{
			{DocumentID: a, Financial: fin(a, nil, "1500.00", "20.10")},
			{DocumentID: b, Financial: fin(b, nil, "1500.005")},
		})
		assert.Equal(t, []string{"amounts"}, cmps[0].MatchingFields)
		assert.Empty(t, found)

		cmps, found = Compare([]DocumentFields{
			{DocumentID: a, Financial: fin(a, nil, "1500.00")},
			{DocumentID: b, Financial: fin(b, nil, "1500.01")},
		})
		assert.Equal(t, []string{"amounts"}, cmps[0].ConflictingFields)
		assert.Equal(t, 0.0, cmps[0].Similarity)
		assert.Empty(t, found)
	})
}

func TestCompare_Business(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	biz := func(id uuid.UUID, name, ein, addr string) *extract.Fields {
		return &extract.Fields{
			DocumentID: id,
			Category:   constants.FieldCategoryBusiness,
			Business:   &extract.BusinessFields{BusinessName: name, EIN: ein, BusinessAddress: addr},
		}
	}
	cmps, found := Compare([]DocumentFields{
		{DocumentID: a, Business: biz(a, "Acme Holdings LLC", "12-3456789", "1 Industrial Way, Austin TX")},
		{DocumentID: b, Business: biz(b, "Acme Holdings, LLC", "98-7654321", "1 Industrial Way Austin TX")},
	})
	require.Len(t, found, 1)
	assert.Equal(t, constants.BusinessInfoConflict, found[0].Type)
	assert.Equal(t, "ein", found[0].Field)
	assert.Equal(t, []string{"business_name", "business_address"}, cmps[0].MatchingFields)
	assert.InDelta(t, 2.0/3.0, cmps[0].Similarity, 1e-9)
}

func TestInconsistency_ToAnomaly(t *testing.T) {
	app, a, b := uuid.New(), uuid.New(), uuid.New()
	_, found := Compare([]DocumentFields{
		{DocumentID: a, Personal: personal(a, "", "111-11-1111")},
		{DocumentID: b, Personal: personal(b, "", "222-22-2222")},
	})
	require.Len(t, found, 1)

	rec := found[0].ToAnomaly(app)
	assert.Equal(t, app, rec.ApplicationID)
	assert.Equal(t, string(constants.IDNumberMismatch), rec.AnomalyType)
	assert.Equal(t, constants.SeverityCritical, rec.Severity)
	require.NotNil(t, rec.Evidence.Inconsistency)
	assert.Equal(t, entity.EvidenceInconsistency, rec.Evidence.Kind)
	assert.Equal(t, []uuid.UUID{a, b}, rec.Evidence.Inconsistency.AffectedDocuments)
	assert.Contains(t, rec.Evidence.Inconsistency.Details, "111111111")
}
