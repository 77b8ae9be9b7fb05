package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/loan-docintel/constants"
	"github.com/joseph-ayodele/loan-docintel/internal/common"
	"github.com/joseph-ayodele/loan-docintel/internal/entity"
	"github.com/joseph-ayodele/loan-docintel/internal/llm"
)

// DocumentLookup is the slice of the document repository the service needs.
type DocumentLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
}

// Service is the FieldProvider backed by the layout service and an LLM field extractor.
type Service struct {
	docs      DocumentLookup
	layout    LayoutProvider
	extractor llm.FieldExtractor
	logger    *slog.Logger
}

func NewService(docs DocumentLookup, layout LayoutProvider, extractor llm.FieldExtractor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		docs:      docs,
		layout:    layout,
		extractor: extractor,
		logger:    logger,
	}
}

func (s *Service) Extract(ctx context.Context, documentID uuid.UUID, category constants.FieldCategory) (*Fields, error) {
	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	res, err := s.layout.Analyze(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	if strings.TrimSpace(res.Text) == "" {
		s.logger.Debug("extract.no_text", "document_id", documentID, "category", category)
		return nil, ErrNoData
	}

	cf, _, err := s.extractor.ExtractFields(ctx, llm.ExtractRequest{
		Text:         res.Text,
		Category:     category,
		DocumentType: doc.DocumentType,
		FilenameHint: doc.Filename,
	})
	if err != nil {
		return nil, fmt.Errorf("llm extract: %w", err)
	}
	if cf.IsEmpty() {
		return nil, ErrNoData
	}

	fields := FromCategoryFields(documentID, category, cf)
	appID, _ := common.ApplicationIDFromContext(ctx)
	s.logger.Debug("extract.ok",
		"application_id", appID,
		"document_id", documentID,
		"category", category,
		"present", fields.Present(),
	)
	return fields, nil
}

// FromCategoryFields types the LLM output for one category.
func FromCategoryFields(documentID uuid.UUID, category constants.FieldCategory, cf llm.CategoryFields) *Fields {
	out := &Fields{
		DocumentID: documentID,
		Category:   category,
		Confidence: float64(cf.ModelConfidence),
	}
	switch category {
	case constants.FieldCategoryPersonal:
		out.Personal = &PersonalFields{
			Name:                 strings.TrimSpace(cf.Name),
			Address:              strings.TrimSpace(cf.Address),
			IdentificationNumber: strings.TrimSpace(cf.IdentificationNumber),
			DateOfBirth:          strings.TrimSpace(cf.DateOfBirth),
		}
	case constants.FieldCategoryBusiness:
		out.Business = &BusinessFields{
			BusinessName:    strings.TrimSpace(cf.BusinessName),
			EIN:             strings.TrimSpace(cf.EIN),
			BusinessAddress: strings.TrimSpace(cf.BusinessAddress),
		}
	case constants.FieldCategoryFinancial:
		fin := &FinancialFields{}
		for _, a := range cf.AccountNumbers {
			if a = strings.TrimSpace(a); a != "" {
				fin.AccountNumbers = append(fin.AccountNumbers, a)
			}
		}
		for _, a := range cf.Amounts {
			if d, ok := llm.ParseAmount(a); ok {
				fin.Amounts = append(fin.Amounts, d)
			}
		}
		out.Financial = fin
	}
	return out
}
