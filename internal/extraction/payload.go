package extraction

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Payload is the extractor-type-keyed content of a pending extraction.
// One variant exists per extractor type; the promotion step dispatches on
// the concrete type.
type Payload interface {
	// ExtractorType returns the type constant this payload belongs to.
	ExtractorType() string
}

// MetadataPayload carries site presentation fields.
type MetadataPayload struct {
	WebsiteName   string `json:"websiteName,omitempty"`
	AssistantName string `json:"assistantName,omitempty"`
}

func (MetadataPayload) ExtractorType() string { return TypeMetadata }

// BrandingPayload carries visual branding assets.
type BrandingPayload struct {
	Logo    string `json:"logo,omitempty"`
	Favicon string `json:"favicon,omitempty"`
}

func (BrandingPayload) ExtractorType() string { return TypeBranding }

// KnowledgePayload carries one candidate knowledge snippet. Kind is
// "url" or "text"; exactly one of URL and Text is expected to be set.
type KnowledgePayload struct {
	Kind  string `json:"type"`
	URL   string `json:"url,omitempty"`
	Text  string `json:"text,omitempty"`
	Title string `json:"title,omitempty"`
}

func (KnowledgePayload) ExtractorType() string { return TypeKnowledge }

// NavigationPayload carries one navigation hint scraped from the page.
type NavigationPayload struct {
	Label    string `json:"label"`
	Action   string `json:"action,omitempty"`
	Selector string `json:"selector,omitempty"`
}

func (NavigationPayload) ExtractorType() string { return TypeNavigation }

// FormPayload carries one form the widget discovered on the page.
type FormPayload struct {
	Name   string   `json:"name"`
	Action string   `json:"action,omitempty"`
	Fields []string `json:"fields,omitempty"`
}

func (FormPayload) ExtractorType() string { return TypeForm }

// ParsePayload decodes raw payload bytes into the variant matching the
// extractor type. Unknown fields are rejected so malformed widget
// submissions fail review loudly instead of promoting partial data.
func ParsePayload(extractorType string, raw json.RawMessage) (Payload, error) {
	var payload Payload
	switch extractorType {
	case TypeMetadata:
		payload = &MetadataPayload{}
	case TypeBranding:
		payload = &BrandingPayload{}
	case TypeKnowledge:
		payload = &KnowledgePayload{}
	case TypeNavigation:
		payload = &NavigationPayload{}
	case TypeForm:
		payload = &FormPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, extractorType)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("%w: decoding %s payload: %w", ErrInvalidPayload, extractorType, err)
	}

	if v, ok := payload.(interface{ validate() error }); ok {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

func (p *KnowledgePayload) validate() error {
	switch p.Kind {
	case "url":
		if p.URL == "" {
			return fmt.Errorf("%w: knowledge payload of kind url is missing url", ErrInvalidPayload)
		}
	case "text":
		if p.Text == "" {
			return fmt.Errorf("%w: knowledge payload of kind text is missing text", ErrInvalidPayload)
		}
	default:
		return fmt.Errorf("%w: knowledge payload kind %q", ErrInvalidPayload, p.Kind)
	}
	return nil
}

func (p *MetadataPayload) validate() error {
	if p.WebsiteName == "" && p.AssistantName == "" {
		return fmt.Errorf("%w: metadata payload has no fields set", ErrInvalidPayload)
	}
	return nil
}
