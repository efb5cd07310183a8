// Package metadata builds the fixed-schema JSON documents the protocol
// expects as post and account content.
//
// Every builder validates its output against an embedded JSON Schema before
// returning, so malformed documents fail fast on the client instead of being
// rejected after upload.
package metadata

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// Schema identifiers carried in the $schema field of each document.
const (
	TextOnlySchema = "https://json-schemas.beacon.social/posts/text-only/1.0.0.json"
	EmbedSchema    = "https://json-schemas.beacon.social/posts/embed/1.0.0.json"
	AccountSchema  = "https://json-schemas.beacon.social/account/1.0.0.json"
)

// DefaultLocale is used when a builder is not given a locale.
const DefaultLocale = "en"

//go:embed schemas/text-only.json
var textOnlySchemaJSON []byte

//go:embed schemas/embed.json
var embedSchemaJSON []byte

//go:embed schemas/account.json
var accountSchemaJSON []byte

// Document is a metadata document ready for upload.
type Document struct {
	Schema string                 `json:"$schema"`
	Beacon map[string]interface{} `json:"beacon"`
}

// Attachment references an uploaded media resource from a post document.
type Attachment struct {
	Item string `json:"item"`
	Type string `json:"type,omitempty"`
}

// TextOnly builds a text post document with zero or more media attachments.
func TextOnly(content string, attachments ...Attachment) (*Document, error) {
	body := map[string]interface{}{
		"id":               uuid.NewString(),
		"locale":           DefaultLocale,
		"mainContentFocus": "TEXT_ONLY",
		"content":          content,
	}
	if len(attachments) > 0 {
		items := make([]interface{}, 0, len(attachments))
		for _, a := range attachments {
			item := map[string]interface{}{"item": a.Item}
			if a.Type != "" {
				item["type"] = a.Type
			}
			items = append(items, item)
		}
		body["attachments"] = items
	}

	doc := &Document{Schema: TextOnlySchema, Beacon: body}
	if err := validate(doc, textOnlySchemaJSON); err != nil {
		return nil, err
	}
	return doc, nil
}

// Embed builds an embed post document referencing an uploaded resource, with
// an optional text description.
func Embed(embedURI, content string) (*Document, error) {
	body := map[string]interface{}{
		"id":               uuid.NewString(),
		"locale":           DefaultLocale,
		"mainContentFocus": "EMBED",
		"embed":            embedURI,
	}
	if content != "" {
		body["content"] = content
	}

	doc := &Document{Schema: EmbedSchema, Beacon: body}
	if err := validate(doc, embedSchemaJSON); err != nil {
		return nil, err
	}
	return doc, nil
}

// Account builds an account profile document. At least one of name, bio, or
// pictureURI must be set.
func Account(name, bio, pictureURI string) (*Document, error) {
	body := map[string]interface{}{
		"id": uuid.NewString(),
	}
	if name != "" {
		body["name"] = name
	}
	if bio != "" {
		body["bio"] = bio
	}
	if pictureURI != "" {
		body["picture"] = pictureURI
	}

	doc := &Document{Schema: AccountSchema, Beacon: body}
	if err := validate(doc, accountSchemaJSON); err != nil {
		return nil, err
	}
	return doc, nil
}

// validate checks the document against its embedded JSON Schema.
func validate(doc *Document, schemaJSON []byte) error {
	schemaLoader := gojsonschema.NewBytesLoader(schemaJSON)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate metadata: %w", err)
	}
	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return fmt.Errorf("metadata does not match schema: %s", strings.Join(details, "; "))
	}
	return nil
}
