package memory

import (
	"context"
)

// BatchItem is one member of a batch upsert.
type BatchItem struct {
	Label string         `json:"label"`
	ID    string         `json:"id,omitempty"`
	Props map[string]any `json:"props"`
}

// BatchItemResult reports one member's outcome.
type BatchItemResult struct {
	Index  int           `json:"index"`
	Result *UpsertResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// BatchResult accumulates per-member outcomes.
type BatchResult struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Items     []BatchItemResult `json:"items"`
}

// BatchUpsert validates every member first, then commits each valid one
// in its own transaction. Individual failures accumulate in the result
// and never abort the batch.
func (s *Service) BatchUpsert(ctx context.Context, items []BatchItem, actor string) (*BatchResult, error) {
	result := &BatchResult{Items: make([]BatchItemResult, len(items))}

	normalized := make([]map[string]any, len(items))
	for i, item := range items {
		result.Items[i].Index = i
		validate, err := s.registry.Node(item.Label)
		if err != nil {
			result.Items[i].Error = err.Error()
			continue
		}
		props, verr := validate(item.Props)
		if verr != nil {
			result.Items[i].Error = verr.Error()
			continue
		}
		normalized[i] = props
	}

	for i, item := range items {
		if result.Items[i].Error != "" {
			result.Failed++
			continue
		}
		res, err := s.Upsert(ctx, item.Label, item.ID, normalized[i], actor)
		if err != nil {
			result.Items[i].Error = err.Error()
			result.Failed++
			continue
		}
		result.Items[i].Result = res
		result.Succeeded++
	}

	return result, nil
}
