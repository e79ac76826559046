package core

import (
	"context"
	"fmt"

	"github.com/m-mizutani/gollem"

	"github.com/metroplan-lab/civitas/pkg/agent/tool"
	"github.com/metroplan-lab/civitas/pkg/service/citydata"
)

// cityDataTool adapts one citydata.Source into an agent tool. Role gating
// happens at tool assembly time: sources the user may not consult are never
// handed to the agent.
type cityDataTool struct {
	source citydata.Source
}

func (t *cityDataTool) Spec() gollem.ToolSpec {
	return gollem.ToolSpec{
		Name:        t.source.Name(),
		Description: t.source.Description(),
		Parameters: map[string]*gollem.Parameter{
			"query": {
				Type:        gollem.TypeString,
				Description: "What to look up, including any district or corridor names",
				Required:    true,
			},
		},
	}
}

func (t *cityDataTool) Run(ctx context.Context, args map[string]any) (map[string]any, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	tool.Update(ctx, fmt.Sprintf("Consulting %s", t.source.Name()))

	summary, err := t.source.Summary(ctx, query)
	if err != nil {
		return nil, err
	}
	return map[string]any{"summary": summary}, nil
}
