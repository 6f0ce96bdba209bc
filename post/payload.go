package post

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the normalized form of every accepted import body.
type Payload struct {
	Posts []Definition
	// Batch is set for array and {posts: [...]} inputs, which are answered
	// with a list rather than a single post.
	Batch bool
}

// DecodePayload normalizes an import body into a Payload. Accepted shapes:
//
//	{...post}
//	{"post": {...}}            (the export wrapper, exportedAt is ignored)
//	[{...post} | {"post": {...}}, ...]
//	{"posts": [...]}
func DecodePayload(data []byte) (Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Payload{}, Invalid("body", "is empty")
	}
	switch data[0] {
	case '[':
		posts, err := decodeList(data)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Posts: posts, Batch: true}, nil
	case '{':
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(data, &probe); err != nil {
			return Payload{}, Invalid("body", "malformed JSON: "+err.Error())
		}
		if raw, ok := probe["posts"]; ok && !isNull(raw) {
			posts, err := decodeList(raw)
			if err != nil {
				return Payload{}, err
			}
			return Payload{Posts: posts, Batch: true}, nil
		}
		d, err := decodeItem(data, probe)
		if err != nil {
			return Payload{}, err
		}
		return Payload{Posts: []Definition{d}}, nil
	default:
		return Payload{}, Invalid("body", "must be a JSON object or array")
	}
}

func decodeList(data []byte) ([]Definition, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, Invalid("posts", "must be an array of posts")
	}
	if len(items) == 0 {
		return nil, Invalid("posts", "must not be empty")
	}
	posts := make([]Definition, 0, len(items))
	for i, item := range items {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(item, &probe); err != nil {
			return nil, Invalid(fmt.Sprintf("posts[%d]", i), "must be an object")
		}
		d, err := decodeItem(item, probe)
		if err != nil {
			return nil, err
		}
		posts = append(posts, d)
	}
	return posts, nil
}

// decodeItem unwraps {"post": ...} when present and decodes the definition.
func decodeItem(data []byte, probe map[string]json.RawMessage) (Definition, error) {
	if raw, ok := probe["post"]; ok && !isNull(raw) {
		data = raw
	}
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return Definition{}, Invalid("post", "malformed definition: "+err.Error())
	}
	return d, nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
