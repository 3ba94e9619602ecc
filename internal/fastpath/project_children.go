package fastpath

import (
	"context"
	"fmt"
)

// GetBlockChildren implements the "get-block-children" fast-path
// operation: paginate the parent's `content` array of child IDs, fetch
// all referenced rows in one query, and project every one of them. If
// any referenced child is missing or fails block validation, the whole
// page is declined (ok=false) rather than emitted partially.
func (f *FastPath) GetBlockChildren(ctx context.Context, rawParentID, startCursor string, pageSize int) (list map[string]interface{}, ok bool, err error) {
	if f == nil {
		return nil, false, nil
	}

	parentID, valid := NormalizeID(ExtractUUID(rawParentID))
	if !valid {
		return nil, false, nil
	}

	parentRow, err := f.queryRowByID(ctx, parentID, "")
	if err != nil {
		return nil, false, fmt.Errorf("fastpath: get block children %s: %w", parentID, err)
	}
	if parentRow == nil {
		return nil, false, nil
	}

	rawContent, contentOK := parseJSONArray(parentRow.Content)
	if !contentOK {
		return nil, false, nil
	}

	childIDs := make([]string, 0, len(rawContent))
	for _, raw := range rawContent {
		s, ok := raw.(string)
		if !ok {
			return nil, false, nil
		}
		childIDs = append(childIDs, s)
	}

	limit := pageSize
	if limit < 1 || limit > f.maxPageSize {
		limit = f.maxPageSize
	}

	startIndex := 0
	if startCursor != "" {
		found := false
		for i, id := range childIDs {
			if id == startCursor {
				startIndex = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, false, nil
		}
	}

	end := startIndex + limit
	if end > len(childIDs) {
		end = len(childIDs)
	}
	if startIndex > end {
		startIndex = end
	}
	page := childIDs[startIndex:end]

	rowsByID, err := f.queryRowsByIDs(ctx, page)
	if err != nil {
		return nil, false, fmt.Errorf("fastpath: resolve children of %s: %w", parentID, err)
	}

	results := make([]interface{}, 0, len(page))
	for _, id := range page {
		childRow, found := rowsByID[id]
		if !found {
			return nil, false, nil
		}
		projected, ok, err := projectBlock(childRow)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		results = append(results, projected)
	}

	hasMore := end < len(childIDs)
	var nextCursor interface{}
	if hasMore && len(page) > 0 {
		nextCursor = page[len(page)-1]
	}

	return map[string]interface{}{
		"object":      "list",
		"results":     results,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
		"type":        "block",
		"block":       map[string]interface{}{},
	}, true, nil
}
