package backend

import (
	"context"

	"github.com/identia-project/identia/internal/document"
)

// Compile-time assertion that DocumentProcessor implements
// document.Processor.
var _ document.Processor = (*DocumentProcessor)(nil)

// DocumentProcessor adapts a Client to the document package's collaborator
// interface, binding the backend session ID to every extraction request.
type DocumentProcessor struct {
	client    Client
	sessionID string
}

// NewDocumentProcessor creates the adapter.
func NewDocumentProcessor(client Client, sessionID string) *DocumentProcessor {
	return &DocumentProcessor{client: client, sessionID: sessionID}
}

// ProcessDocument submits the image and converts the response shape.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, image []byte, documentType string) (document.Extraction, error) {
	resp, err := p.client.ProcessDocument(ctx, DocumentRequest{
		SessionID:    p.sessionID,
		Image:        image,
		DocumentType: documentType,
	})
	if err != nil {
		return document.Extraction{}, err
	}
	return document.Extraction{
		Confidence: resp.Confidence,
		Fields:     resp.Extracted,
		Warnings:   resp.Warnings,
	}, nil
}
