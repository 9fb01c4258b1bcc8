package engine

import (
	"fmt"

	"github.com/dgallion1/docsum/internal/apperr"
	"github.com/dgallion1/docsum/internal/document"
	"github.com/dgallion1/docsum/internal/model"
	"github.com/dgallion1/docsum/internal/prompt"
	"github.com/dgallion1/docsum/internal/segment"
	"github.com/dgallion1/docsum/internal/summary"
	"github.com/dgallion1/docsum/internal/usage"
)

// unit is one piece of work for the invoker: a span of source text, or a set
// of partial summaries to be reduced as if they were a chunk.
type unit interface {
	call(p prompt.Set, doc document.Document) model.Call
	input(p prompt.Set, doc document.Document) string
	pages(docPages map[int]bool) map[int]bool
	label() string
}

// documentUnit is a chunk of source text, or the whole text in single mode.
type documentUnit struct {
	chunk  segment.Chunk
	total  int
	single bool
}

func (u documentUnit) call(p prompt.Set, doc document.Document) model.Call {
	if u.single {
		return model.Call{
			Chunk:  apperr.NoChunk,
			Stage:  usage.StageSingle,
			System: p.System,
			Prompt: p.SinglePrompt(doc.Title, u.chunk.Text),
		}
	}
	return model.Call{
		Chunk:  u.chunk.Index,
		Stage:  usage.StageMap,
		System: p.System,
		Prompt: p.MapPrompt(doc.Title, u.chunk.Index, u.total, u.chunk.Anchored()),
	}
}

func (u documentUnit) input(_ prompt.Set, _ document.Document) string {
	if u.single {
		return u.chunk.Text
	}
	return u.chunk.Anchored()
}

// pages limits references to the pages this chunk can see.
func (u documentUnit) pages(docPages map[int]bool) map[int]bool {
	if u.single || docPages == nil {
		return docPages
	}
	return document.PageSet(u.chunk.Anchored())
}

func (u documentUnit) label() string {
	if u.single {
		return "document"
	}
	return fmt.Sprintf("chunk %d", u.chunk.Index)
}

// mergedUnit is a group of partial summaries to be reduced into one.
type mergedUnit struct {
	partials []summary.Structure
	depth    int
}

func (u mergedUnit) serialized() []string {
	out := make([]string, len(u.partials))
	for i, p := range u.partials {
		out[i] = p.JSON()
	}
	return out
}

func (u mergedUnit) call(p prompt.Set, doc document.Document) model.Call {
	return model.Call{
		Chunk:  apperr.NoChunk,
		Stage:  usage.StageReduce,
		System: p.System,
		Prompt: p.ReducePrompt(doc.Title, u.depth, u.serialized()),
	}
}

func (u mergedUnit) input(p prompt.Set, doc document.Document) string {
	return p.ReducePrompt(doc.Title, u.depth, u.serialized())
}

func (u mergedUnit) pages(docPages map[int]bool) map[int]bool {
	return docPages
}

func (u mergedUnit) label() string {
	return fmt.Sprintf("reduce depth %d", u.depth)
}
