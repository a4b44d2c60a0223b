package jobboard

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	cardSelector    = "div.job_seen_beacon"
	titleSelector   = ".jobTitle"
	companySelector = ".companyName"
	linkSelector    = "a.jcs-JobTitle"
	salarySelector  = ".salary-snippet"
)

// ParseCards reads up to limit listing cards from a rendered search page.
// Cards that can not be parsed are skipped and returned as errors wrapping
// ErrCardParse. Relative links are resolved against pageURL.
func ParseCards(html, pageURL, location string, limit int) ([]*Listing, []error, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, fmt.Errorf("parse page: %w", err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse page url: %w", err)
	}

	var (
		listings []*Listing
		skipped  []error
	)

	doc.Find(cardSelector).EachWithBreak(func(i int, card *goquery.Selection) bool {
		if limit > 0 && i >= limit {
			return false
		}

		listing, err := parseCard(card, base)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("card %d: %w", i, err))
			return true
		}

		listing.Location = location
		listings = append(listings, listing)
		return true
	})

	return listings, skipped, nil
}

func parseCard(card *goquery.Selection, base *url.URL) (*Listing, error) {
	title := text(card.Find(titleSelector))
	if title == "" {
		return nil, fmt.Errorf("%w: missing title", ErrCardParse)
	}

	company := text(card.Find(companySelector))
	if company == "" {
		return nil, fmt.Errorf("%w: missing company", ErrCardParse)
	}

	href, ok := card.Find(linkSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return nil, fmt.Errorf("%w: missing link", ErrCardParse)
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("%w: bad link %q: %w", ErrCardParse, href, err)
	}

	salary := text(card.Find(salarySelector))
	if salary == "" {
		salary = NotSpecified
	}

	return &Listing{
		Title:   title,
		Company: company,
		Salary:  salary,
		Link:    base.ResolveReference(ref).String(),
		Posted:  PostedRecent,
	}, nil
}

func text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.First().Text()), " ")
}
