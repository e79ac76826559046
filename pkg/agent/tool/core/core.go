package core

import (
	"github.com/m-mizutani/gollem"

	"github.com/metroplan-lab/civitas/pkg/domain/interfaces"
	"github.com/metroplan-lab/civitas/pkg/domain/types"
	"github.com/metroplan-lab/civitas/pkg/service/citydata"
)

// New builds the tools available to the chat agent for the given user. The
// memory tools are always present; city data tools depend on the user's role.
func New(repo interfaces.Repository, embedder interfaces.Embedder, userID types.UserID, role types.Role) []gollem.Tool {
	tools := []gollem.Tool{
		&searchConversationsTool{repo: repo, embedder: embedder, userID: userID},
		&sessionHistoryTool{repo: repo, userID: userID},
		&listSessionsTool{repo: repo, userID: userID},
	}

	for _, src := range citydata.ForRole(role) {
		tools = append(tools, &cityDataTool{source: src})
	}

	return tools
}
