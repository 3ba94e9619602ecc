package fastpath

import (
	"context"
	"fmt"
)

// blockTypeMap translates the third-party app's internal block type names
// to the hosted API's public block type names. Any type absent here maps
// to itself (identity fallback).
var blockTypeMap = map[string]string{
	"text":           "paragraph",
	"header":         "heading_1",
	"sub_header":     "heading_2",
	"sub_sub_header": "heading_3",
	"bulleted_list":  "bulleted_list_item",
	"numbered_list":  "numbered_list_item",
	"page":           "child_page",
}

// RetrieveBlock implements the "retrieve-a-block" fast-path operation.
func (f *FastPath) RetrieveBlock(ctx context.Context, rawID string) (block map[string]interface{}, ok bool, err error) {
	if f == nil {
		return nil, false, nil
	}

	id, valid := NormalizeID(ExtractUUID(rawID))
	if !valid {
		return nil, false, nil
	}

	r, err := f.queryRowByID(ctx, id, "")
	if err != nil {
		return nil, false, fmt.Errorf("fastpath: retrieve block %s: %w", id, err)
	}
	if r == nil {
		return nil, false, nil
	}

	return projectBlock(r)
}

func apiBlockType(localType string) (string, bool) {
	if localType == "" {
		return "", false
	}
	if mapped, known := blockTypeMap[localType]; known {
		return mapped, true
	}
	return localType, true
}

// projectBlock converts a raw row into the API block shape, or declines
// (ok=false) when type/properties/content fail validation.
func projectBlock(r *row) (map[string]interface{}, bool, error) {
	apiType, valid := apiBlockType(r.Type)
	if !valid {
		return nil, false, nil
	}

	props, propsOK := parseJSONObject(r.Properties)
	if !propsOK {
		return nil, false, nil
	}
	content, contentOK := parseJSONArray(r.Content)
	if !contentOK {
		return nil, false, nil
	}

	result := map[string]interface{}{
		"object":           "block",
		"id":               r.ID,
		"type":             apiType,
		"created_time":     isoTime(r.CreatedTime),
		"last_edited_time": isoTime(r.LastEditedTime),
		"has_children":     len(content) > 0,
		"archived":         r.Alive != 1,
		apiType:            blockPayload(apiType, props),
	}
	if parent, present := parentObject(r.ParentTable, r.ParentID); present {
		result["parent"] = parent
	}

	return result, true, nil
}

// blockPayload builds the type-keyed body object nested under the
// block's type field.
func blockPayload(apiType string, props map[string]interface{}) map[string]interface{} {
	switch apiType {
	case "paragraph", "heading_1", "heading_2", "heading_3", "bulleted_list_item", "numbered_list_item":
		return map[string]interface{}{
			"rich_text": richtext(plainTextOf(props["title"])),
			"color":     "default",
		}
	case "to_do":
		return map[string]interface{}{
			"rich_text": richtext(plainTextOf(props["title"])),
			"color":     "default",
			"checked":   false,
		}
	case "child_page":
		return map[string]interface{}{"title": plainTextOf(props["title"])}
	default:
		return map[string]interface{}{}
	}
}
