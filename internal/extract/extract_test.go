package extract

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/llm"
)

type fakeDocs struct {
	docs map[uuid.UUID]*entity.Document
}

func (f *fakeDocs) GetByID(_ context.Context, id uuid.UUID) (*entity.Document, error) {
	if d, ok := f.docs[id]; ok {
		return d, nil
	}
	return nil, common.ErrNotFound
}

type fakeLayout struct {
	calls atomic.Int32
	text  string
	err   error
}

func (f *fakeLayout) Analyze(_ context.Context, doc *entity.Document) (LayoutResult, error) {
	f.calls.Add(1)
	if f.err != nil {
		return LayoutResult{}, f.err
	}
	return LayoutResult{DocumentID: doc.ID, Text: f.text}, nil
}

type fakeExtractor struct {
	mu     sync.Mutex
	out    map[constants.FieldCategory]llm.CategoryFields
	seen   []llm.ExtractRequest
	failed error
}

func (f *fakeExtractor) ExtractFields(_ context.Context, req llm.ExtractRequest) (llm.CategoryFields, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, req)
	if f.failed != nil {
		return llm.CategoryFields{}, nil, f.failed
	}
	return f.out[req.Category], []byte(`{}`), nil
}

func newService(t *testing.T, layout *fakeLayout, ex *fakeExtractor) (*Service, uuid.UUID) {
	t.Helper()
	doc := &entity.Document{ID: uuid.New(), Filename: "stub.pdf", DocumentType: constants.PayStub}
	docs := &fakeDocs{docs: map[uuid.UUID]*entity.Document{doc.ID: doc}}
	return NewService(docs, layout, ex, slog.New(slog.NewTextHandler(io.Discard, nil))), doc.ID
}

func TestService_ExtractTypesFields(t *testing.T) {
	ex := &fakeExtractor{out: map[constants.FieldCategory]llm.CategoryFields{
		constants.FieldCategoryFinancial: {AccountNumbers: []string{" ****1234 ", ""}, Amounts: []string{"1,200.50", "bogus"}, ModelConfidence: 0.8},
		constants.FieldCategoryPersonal:  {Name: "Jane Doe"},
	}}
	svc, docID := newService(t, &fakeLayout{text: "pay stub text"}, ex)

	fin, err := svc.Extract(context.Background(), docID, constants.FieldCategoryFinancial)
	require.NoError(t, err)
	require.NotNil(t, fin.Financial)
	assert.Equal(t, []string{"****1234"}, fin.Financial.AccountNumbers)
	require.Len(t, fin.Financial.Amounts, 1)
	assert.True(t, fin.Financial.Amounts[0].Equal(decimal.RequireFromString("1200.50")))
	assert.InDelta(t, 0.8, fin.Confidence, 1e-6)
	assert.ElementsMatch(t, []string{"account_numbers", "amounts"}, fin.Present())

	per, err := svc.Extract(context.Background(), docID, constants.FieldCategoryPersonal)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", per.Personal.Name)
	assert.Equal(t, []string{"name"}, per.Present())

	_, err = svc.Extract(context.Background(), docID, constants.FieldCategoryBusiness)
	assert.ErrorIs(t, err, ErrNoData)

	require.NotEmpty(t, ex.seen)
	assert.Equal(t, constants.PayStub, ex.seen[0].DocumentType)
	assert.Equal(t, "stub.pdf", ex.seen[0].FilenameHint)
}

func TestService_ExtractErrors(t *testing.T) {
	svc, docID := newService(t, &fakeLayout{text: "   "}, &fakeExtractor{})
	_, err := svc.Extract(context.Background(), docID, constants.FieldCategoryPersonal)
	assert.ErrorIs(t, err, ErrNoData)

	boom := errors.New("layout down")
	svc, docID = newService(t, &fakeLayout{err: boom}, &fakeExtractor{})
	_, err = svc.Extract(context.Background(), docID, constants.FieldCategoryPersonal)
	assert.ErrorIs(t, err, boom)

	_, err = svc.Extract(context.Background(), uuid.New(), constants.FieldCategoryPersonal)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

type countingProvider struct {
	calls atomic.Int32
	err   error
}

func (p *countingProvider) Extract(_ context.Context, id uuid.UUID, c constants.FieldCategory) (*Fields, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &Fields{DocumentID: id, Category: c}, nil
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	p := &countingProvider{}
	c := NewCache(p)
	for i := 0; i < 3; i++ {
		_, err := c.Extract(ctx, id, constants.FieldCategoryPersonal)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, p.calls.Load())

	c.Invalidate(id)
	_, err := c.Extract(ctx, id, constants.FieldCategoryPersonal)
	require.NoError(t, err)
	assert.EqualValues(t, 2, p.calls.Load())

	noData := &countingProvider{err: ErrNoData}
	c = NewCache(noData)
	_, err = c.Extract(ctx, id, constants.FieldCategoryBusiness)
	assert.ErrorIs(t, err, ErrNoData)
	_, err = c.Extract(ctx, id, constants.FieldCategoryBusiness)
	assert.ErrorIs(t, err, ErrNoData)
	assert.EqualValues(t, 1, noData.calls.Load())

	failing := &countingProvider{err: errors.New("timeout")}
	c = NewCache(failing)
	_, _ = c.Extract(ctx, id, constants.FieldCategoryBusiness)
	_, _ = c.Extract(ctx, id, constants.FieldCategoryBusiness)
	assert.EqualValues(t, 2, failing.calls.Load())
}

func TestLayoutCache(t *testing.T) {
	inner := &fakeLayout{text: "hello"}
	c := NewLayoutCache(inner)
	doc := &entity.Document{ID: uuid.New()}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Analyze(context.Background(), doc)
			assert.NoError(t, err)
			assert.Equal(t, "hello", res.Text)
		}()
	}
	wg.Wait()
	_, err := c.Analyze(context.Background(), doc)
	require.NoError(t, err)
	assert.LessOrEqual(t, inner.calls.Load(), int32(8))
	before := inner.calls.Load()
	_, _ = c.Analyze(context.Background(), doc)
	assert.Equal(t, before, inner.calls.Load())
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "123 main st apt 4", NormalizeText("  123 Main St., Apt #4 "))
	assert.Equal(t, "obrien", NormalizeText("O'Brien"))
}
