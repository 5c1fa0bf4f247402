package extract

import (
	"html"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

const socialSelector = `meta[property^="og:"], meta[property^="product:"], meta[property^="twitter:"]`

// socialCandidate maps OpenGraph and product meta tags. Later tags overwrite
// earlier ones with the same property.
func socialCandidate(doc *goquery.Document) crawler.Candidate {
	candidate := crawler.Candidate{Source: crawler.StageSocial}
	doc.Find(socialSelector).Each(func(_ int, s *goquery.Selection) {
		property := s.AttrOr("property", "")
		content := html.UnescapeString(s.AttrOr("content", ""))
		switch property {
		case "og:title":
			candidate.Name = content
		case "og:image":
			candidate.Image = content
		case "og:url":
			candidate.URL = content
		case "product:price:currency":
			candidate.Currency = content
		case "product:price:amount":
			candidate.Price = content
		}
	})
	return candidate
}
