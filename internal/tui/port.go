package tui

import (
	"context"

	"reportmate/internal/domain"
	"reportmate/internal/service"
)

// SessionPort serves a single retrieval session. Typed text in context
// mode is used as the research topic.
type SessionPort struct {
	Session   service.RetrievalSession
	Assembler *service.Assembler
	TopK      int
}

var _ Port = SessionPort{}

func (p SessionPort) Search(ctx context.Context, query string, k int) ([]domain.RetrievalHit, error) {
	return service.Search(ctx, p.Session, query, k)
}

func (p SessionPort) Assemble(ctx context.Context, topic string) (service.Assembly, error) {
	return p.Assembler.Assemble(ctx, p.Session, service.Query{Topic: topic}, domain.DefaultSections(), p.TopK)
}
