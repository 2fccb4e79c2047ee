package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

type QAService struct {
	retriever     *RetrievalService
	composer      *AnswerComposer
	maxInputChars int
}

func NewQAService(retriever *RetrievalService, composer *AnswerComposer, maxInputChars int) *QAService {
	return &QAService{retriever: retriever, composer: composer, maxInputChars: maxInputChars}
}

type AskInput struct {
	Question         string `json:"question"`
	DocumentFilename string `json:"document_filename"`
	TopK             int    `json:"top_k"`
}

func (s *QAService) Ask(ctx context.Context, subject access.Subject, in AskInput) (*model.Answer, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, appErr.Invalid("question is required")
	}
	if s.maxInputChars > 0 && utf8.RuneCountInString(question) > s.maxInputChars {
		return nil, appErr.Invalidf("question exceeds %d characters", s.maxInputChars)
	}
	if in.TopK < 0 {
		return nil, appErr.Invalid("top_k must not be negative")
	}
	chunks, err := s.retriever.Retrieve(ctx, subject, RetrieveQuery{
		Question: question,
		Filename: strings.TrimSpace(in.DocumentFilename),
		TopK:     in.TopK,
	})
	if err != nil {
		return nil, err
	}
	return s.composer.Compose(ctx, question, chunks)
}
