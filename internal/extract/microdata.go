package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

var productItemTypes = map[string]struct{}{
	"http://schema.org/product":  {},
	"https://schema.org/product": {},
}

// microdataProperties returns the itemprop/content pairs under the first
// schema.org Product scope. The first occurrence of a property wins.
func microdataProperties(doc *goquery.Document) map[string]string {
	scope := doc.Find("[itemscope][itemtype]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		itemType, _ := s.Attr("itemtype")
		_, ok := productItemTypes[strings.ToLower(strings.TrimRight(strings.TrimSpace(itemType), "/"))]
		return ok
	}).First()
	if scope.Length() == 0 {
		return nil
	}

	props := make(map[string]string)
	scope.Find("[itemprop]").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.AttrOr("itemprop", ""))
		content := strings.TrimSpace(s.AttrOr("content", ""))
		if name == "" || content == "" {
			return
		}
		if _, seen := props[name]; seen {
			return
		}
		props[name] = content
	})
	return props
}

func microdataCandidate(props map[string]string) crawler.Candidate {
	return crawler.Candidate{
		Name:     props["name"],
		Image:    props["image"],
		URL:      props["url"],
		Price:    props["price"],
		Currency: props["priceCurrency"],
		Source:   crawler.StageMicrodata,
	}
}
