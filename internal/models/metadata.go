package models

import (
	"strconv"
	"time"
)

// Metadata keys shared between collection and document records. Unknown keys
// round-trip through the Extra maps so external writers are not broken.
const (
	keyCreatedAt        = "created_at"
	keyAddedAt          = "added_at"
	keyOwner            = "user_id"
	keyDescription      = "description"
	keyType             = "type"
	keyTags             = "tags"
	keySource           = "source"
	keyLength           = "length"
	keyChunkIndex       = "chunk_index"
	keyTotalChunks      = "total_chunks"
	keyOriginalFilename = "original_filename"
)

// CollectionMeta is the structured form of a collection's metadata mapping.
// Owner is kept in its raw string form; loose numeric/string equality is the
// ownership filter's concern, not the model's.
type CollectionMeta struct {
	CreatedAt        string         `json:"created_at"`
	Owner            string         `json:"user_id,omitempty"`
	Description      string         `json:"description,omitempty"`
	Type             string         `json:"type,omitempty"`
	Tags             string         `json:"tags,omitempty"`
	Source           string         `json:"source,omitempty"`
	OriginalFilename string         `json:"original_filename,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// DocumentMeta is the structured form of a document's metadata mapping.
type DocumentMeta struct {
	AddedAt          string         `json:"added_at"`
	Source           string         `json:"source,omitempty"`
	Length           int            `json:"length"`
	Owner            string         `json:"user_id,omitempty"`
	ChunkIndex       int            `json:"chunk_index"`
	TotalChunks      int            `json:"total_chunks,omitempty"`
	OriginalFilename string         `json:"original_filename,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// NewCollectionMeta returns collection metadata stamped with the creation
// time and defaulted description/type, mirroring what the ingest paths write.
func NewCollectionMeta(name, owner string) CollectionMeta {
	return CollectionMeta{
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Owner:       owner,
		Description: "Collection " + name,
		Type:        "general",
	}
}

// ToMap flattens the structured metadata into the loose mapping stored by
// the collection store.
func (m CollectionMeta) ToMap() map[string]any {
	out := make(map[string]any, len(m.Extra)+7)
	for k, v := range m.Extra {
		out[k] = v
	}
	setIfNonEmpty(out, keyCreatedAt, m.CreatedAt)
	setIfNonEmpty(out, keyOwner, m.Owner)
	setIfNonEmpty(out, keyDescription, m.Description)
	setIfNonEmpty(out, keyType, m.Type)
	setIfNonEmpty(out, keyTags, m.Tags)
	setIfNonEmpty(out, keySource, m.Source)
	setIfNonEmpty(out, keyOriginalFilename, m.OriginalFilename)
	return out
}

// CollectionMetaFromMap builds structured metadata from a loose mapping.
// Known keys are lifted into fields; everything else lands in Extra.
func CollectionMetaFromMap(raw map[string]any) CollectionMeta {
	var m CollectionMeta
	for k, v := range raw {
		switch k {
		case keyCreatedAt:
			m.CreatedAt = ScalarString(v)
		case keyOwner:
			m.Owner = ScalarString(v)
		case keyDescription:
			m.Description = ScalarString(v)
		case keyType:
			m.Type = ScalarString(v)
		case keyTags:
			m.Tags = ScalarString(v)
		case keySource:
			m.Source = ScalarString(v)
		case keyOriginalFilename:
			m.OriginalFilename = ScalarString(v)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return m
}

// ToMap flattens the structured document metadata into the loose mapping
// stored alongside the document.
func (m DocumentMeta) ToMap() map[string]any {
	out := make(map[string]any, len(m.Extra)+7)
	for k, v := range m.Extra {
		out[k] = v
	}
	setIfNonEmpty(out, keyAddedAt, m.AddedAt)
	setIfNonEmpty(out, keySource, m.Source)
	setIfNonEmpty(out, keyOwner, m.Owner)
	setIfNonEmpty(out, keyOriginalFilename, m.OriginalFilename)
	out[keyLength] = m.Length
	if m.TotalChunks > 0 {
		out[keyChunkIndex] = m.ChunkIndex
		out[keyTotalChunks] = m.TotalChunks
	}
	return out
}

// DocumentMetaFromMap builds structured document metadata from a loose
// mapping.
func DocumentMetaFromMap(raw map[string]any) DocumentMeta {
	var m DocumentMeta
	for k, v := range raw {
		switch k {
		case keyAddedAt:
			m.AddedAt = ScalarString(v)
		case keySource:
			m.Source = ScalarString(v)
		case keyOwner:
			m.Owner = ScalarString(v)
		case keyOriginalFilename:
			m.OriginalFilename = ScalarString(v)
		case keyLength:
			m.Length = scalarInt(v)
		case keyChunkIndex:
			m.ChunkIndex = scalarInt(v)
		case keyTotalChunks:
			m.TotalChunks = scalarInt(v)
		default:
			if m.Extra == nil {
				m.Extra = make(map[string]any)
			}
			m.Extra[k] = v
		}
	}
	return m
}

func setIfNonEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// ScalarString renders a metadata scalar as a string. Integral floats (the
// usual shape of JSON numbers) render without a fractional part so that
// numeric and string owner ids share one canonical form.
func ScalarString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return ""
	}
}

func scalarInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		n, _ := strconv.Atoi(val)
		return n
	default:
		return 0
	}
}
