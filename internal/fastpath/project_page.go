package fastpath

import (
	"context"
	"database/sql"
	"fmt"
)

// RetrievePage implements the "retrieve-a-page" fast-path operation,
// projecting a single `blocks` row of type "page" into the hosted API's
// page object shape. ok=false means "not found or could not be
// validated"; callers fall through to the official/local HTTP path
// rather than treating it as an error.
func (f *FastPath) RetrievePage(ctx context.Context, rawID string) (page map[string]interface{}, ok bool, err error) {
	if f == nil {
		return nil, false, nil
	}

	id, valid := NormalizeID(ExtractUUID(rawID))
	if !valid {
		return nil, false, nil
	}

	r, err := f.queryRowByID(ctx, id, "page")
	if err != nil {
		return nil, false, fmt.Errorf("fastpath: retrieve page %s: %w", id, err)
	}
	if r == nil {
		return nil, false, nil
	}

	props, propsOK := parseJSONObject(r.Properties)
	if !propsOK {
		return nil, false, nil
	}
	if _, titleIsArray := props["title"].([]interface{}); !titleIsArray {
		if _, titleAbsent := props["title"]; titleAbsent {
			return nil, false, nil
		}
	}

	result := map[string]interface{}{
		"object":           "page",
		"id":               r.ID,
		"created_time":     isoTime(r.CreatedTime),
		"last_edited_time": isoTime(r.LastEditedTime),
		"archived":         r.Alive != 1,
		"in_trash":         r.Alive != 1,
		"url":              "https://www.notion.so/" + StripDashes(r.ID),
		"properties":       projectProperties(props),
	}
	if parent, present := parentObject(r.ParentTable, r.ParentID); present {
		result["parent"] = parent
	}

	return result, true, nil
}

// projectProperties walks the raw properties object: "title" becomes a
// title-typed property, every other field becomes a rich_text-typed
// property, and a synthetic empty title is added if one was not present.
func projectProperties(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props)+1)
	sawTitle := false

	for name, raw := range props {
		text := plainTextOf(raw)
		if name == "title" {
			sawTitle = true
			out[name] = map[string]interface{}{"id": "title", "type": "title", "title": richtext(text)}
			continue
		}
		out[name] = map[string]interface{}{"id": name, "type": "rich_text", "rich_text": richtext(text)}
	}

	if !sawTitle {
		out["title"] = map[string]interface{}{"id": "title", "type": "title", "title": richtext("")}
	}

	return out
}

// plainTextOf flattens the local app's nested richtext-segment encoding
// (an array of [text, annotations?] pairs) into a single plain string.
func plainTextOf(raw interface{}) string {
	segments, ok := raw.([]interface{})
	if !ok {
		return ""
	}
	var out string
	for _, seg := range segments {
		pair, ok := seg.([]interface{})
		if !ok || len(pair) == 0 {
			continue
		}
		if text, ok := pair[0].(string); ok {
			out += text
		}
	}
	return out
}

// richtext returns [] for empty text, else a single text node with every
// annotation false, color "default", and a nil link.
func richtext(text string) []interface{} {
	if text == "" {
		return []interface{}{}
	}
	return []interface{}{
		map[string]interface{}{
			"type":        "text",
			"text":        map[string]interface{}{"content": text, "link": nil},
			"plain_text":  text,
			"href":        nil,
			"annotations": defaultAnnotations(),
		},
	}
}

func defaultAnnotations() map[string]interface{} {
	return map[string]interface{}{
		"bold":          false,
		"italic":        false,
		"strikethrough": false,
		"underline":     false,
		"code":          false,
		"color":         "default",
	}
}

// parentObject builds {type: parent_table+"_id", <parent_table>_id:
// parent_id} when both fields are present; present=false means the
// "parent" key should be omitted entirely.
func parentObject(parentTable, parentID sql.NullString) (obj map[string]interface{}, present bool) {
	if !parentTable.Valid || !parentID.Valid || parentTable.String == "" || parentID.String == "" {
		return nil, false
	}
	key := parentTable.String + "_id"
	return map[string]interface{}{"type": key, key: parentID.String}, true
}
