package service

import (
	"context"
	"fmt"

	"reportmate/internal/domain"
	"reportmate/internal/draft"
	"reportmate/internal/generator"
	"reportmate/internal/logger"
)

// DraftOptions sizes generation passes.
type DraftOptions struct {
	TopK             int
	BaseParagraphs   int
	ExpandParagraphs int
	MinChars         int
}

// Drafter assembles context, calls the generator and validates its output.
type Drafter struct {
	gen      generator.Generator
	asm      *Assembler
	sections []domain.Section
	opts     DraftOptions
	log      *logger.Logger
}

func NewDrafter(gen generator.Generator, asm *Assembler, opts DraftOptions, log *logger.Logger) *Drafter {
	return &Drafter{gen: gen, asm: asm, sections: domain.DefaultSections(), opts: opts, log: logger.OrNop(log)}
}

// Draft runs a first pass, or an expansion pass over prev when prev is not
// nil. Expansion merges evidence so earlier tags keep their summaries.
func (d *Drafter) Draft(ctx context.Context, sess RetrievalSession, q Query, prev *draft.Draft) (*draft.Draft, Assembly, error) {
	asm, err := d.asm.Assemble(ctx, sess, q, d.sections, d.opts.TopK)
	if err != nil {
		return nil, Assembly{}, err
	}

	in := draft.PromptInput{
		Topic:      q.Topic,
		Purpose:    q.Purpose,
		Hypothesis: q.Hypothesis,
		Context:    asm.Context,
		Paragraphs: d.opts.BaseParagraphs,
		MinChars:   d.opts.MinChars,
	}
	var prompt draft.Prompt
	if prev == nil {
		prompt, err = draft.InitialPrompt(in)
	} else {
		in.Paragraphs = d.opts.ExpandParagraphs
		prompt, err = draft.ExpandPrompt(in, prev)
	}
	if err != nil {
		return nil, asm, err
	}

	raw, err := d.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, asm, fmt.Errorf("generate with %s: %w", d.gen.ModelName(), err)
	}
	next, err := draft.Parse(raw, d.log)
	if err != nil {
		return nil, asm, err
	}
	if prev != nil {
		next = draft.Expand(prev, next)
	}
	if missing := next.MissingEvidence(); len(missing) > 0 {
		d.log.Warn("tags without evidence", "count", len(missing), "first", missing[0])
	}
	d.log.Info("draft generated", "expansion_level", next.ExpansionLevel, "tags", len(next.UsedTags()), "degraded_context", asm.Degraded)
	return next, asm, nil
}
