package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

// DefaultPromptTemplate is rendered with the caller's context tags and sent
// ahead of the page's tag records.
const DefaultPromptTemplate = `You read metadata scraped from one page of an online store and decide whether the page sells a single product.
Store: {{.marketplace}} ({{.country}}) {{.marketplace_url}}
Page: {{.page_url}}
The metadata is a JSON list of {"key": ..., "value": ...} records.
If the page is a product page, reply with exactly one flat JSON object with the string fields
"name", "description", "image", "currency", "price" and "code". Use an ISO 4217 code for "currency"
and a plain decimal number without symbols for "price". Leave a field empty when it is unknown.
If the page is not a product page, reply with {}.
Metadata:
`

var deniedMetaKeys = map[string]struct{}{
	"viewport":    {},
	"googlebot":   {},
	"theme-color": {},
	"generator":   {},
	"keywords":    {},
	"robots":      {},
	"canonical":   {},
}

var errNoJSONObject = errors.New("reply contains no json object")

type tagRecord struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (p *Pipeline) assisted(
	ctx context.Context,
	doc *goquery.Document,
	page crawler.Page,
	tags map[string]string,
) (crawler.Candidate, error) {
	raw, err := json.Marshal(tagRecords(doc))
	if err != nil {
		return crawler.Candidate{}, fmt.Errorf("%w: encode tag records: %w", crawler.ErrExtractionFailure, err)
	}
	var prompt bytes.Buffer
	if err := p.prompt.Execute(&prompt, tags); err != nil {
		return crawler.Candidate{}, fmt.Errorf("%w: render prompt: %w", crawler.ErrExtractionFailure, err)
	}
	reply, err := p.assistant.Extract(ctx, prompt.String(), string(raw))
	if err != nil {
		return crawler.Candidate{}, fmt.Errorf("%w: structured extractor: %w", crawler.ErrExtractionFailure, err)
	}
	candidate, err := parseReply(reply)
	if err != nil {
		return crawler.Candidate{}, fmt.Errorf("%w: %w", crawler.ErrExtractionFailure, err)
	}
	if candidate.URL == "" {
		candidate.URL = page.URL
	}
	return candidate, nil
}

// tagRecords flattens every meta tag outside the denylist, plus element
// level itemprop/content pairs, into key/value records.
func tagRecords(doc *goquery.Document) []tagRecord {
	records := make([]tagRecord, 0)
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		key := metaKey(s)
		value := strings.TrimSpace(s.AttrOr("content", ""))
		if key == "" || value == "" {
			return
		}
		if _, denied := deniedMetaKeys[strings.ToLower(key)]; denied {
			return
		}
		records = append(records, tagRecord{Key: key, Value: value})
	})
	doc.Find("[itemprop][content]").Not("meta").Each(func(_ int, s *goquery.Selection) {
		key := strings.TrimSpace(s.AttrOr("itemprop", ""))
		value := strings.TrimSpace(s.AttrOr("content", ""))
		if key == "" || value == "" {
			return
		}
		records = append(records, tagRecord{Key: key, Value: value})
	})
	return records
}

func metaKey(s *goquery.Selection) string {
	for _, attr := range []string{"name", "property", "itemprop", "http-equiv"} {
		if v := strings.TrimSpace(s.AttrOr(attr, "")); v != "" {
			return v
		}
	}
	return ""
}

// parseReply decodes the text between the first '{' and the first '}'.
// Nested objects are therefore not supported.
func parseReply(reply string) (crawler.Candidate, error) {
	start := strings.Index(reply, "{")
	end := strings.Index(reply, "}")
	if start < 0 || end < start {
		return crawler.Candidate{}, errNoJSONObject
	}
	dec := json.NewDecoder(strings.NewReader(reply[start : end+1]))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return crawler.Candidate{}, fmt.Errorf("decode reply: %w", err)
	}
	return crawler.Candidate{
		Name:        stringify(fields["name"]),
		Description: stringify(fields["description"]),
		Image:       stringify(fields["image"]),
		Currency:    stringify(fields["currency"]),
		Price:       stringify(fields["price"]),
		Code:        stringify(fields["code"]),
		Source:      crawler.StageAssisted,
	}, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		// Zero counts as absent, so a 0 price fails the gate.
		if f, err := t.Float64(); err == nil && f == 0 {
			return ""
		}
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return ""
	default:
		return fmt.Sprint(t)
	}
}
