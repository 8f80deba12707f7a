package ports

import "context"

// DefinitionGenerator is the external generative-text collaborator. Given a
// prompt it returns one candidate build definition.
type DefinitionGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
