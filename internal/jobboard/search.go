package jobboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Renderer loads a page and returns its rendered HTML.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (string, error)
}

// Report counts what happened during one search.
type Report struct {
	Locations       int `json:"locations"`
	FailedLocations int `json:"failed_locations"`
	Cards           int `json:"cards"`
	SkippedCards    int `json:"skipped_cards"`
	Duplicates      int `json:"duplicates"`
	Found           int `json:"found"`
}

// BuildSearchURL returns base?q=<terms joined by " OR ">&l=<location>&sort=date.
func BuildSearchURL(base string, terms []string, location string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	q := u.Query()
	q.Set("q", strings.Join(terms, " OR "))
	q.Set("l", location)
	q.Set("sort", "date")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Search loads one results page per location, in order, and collects the
// listing cards. A location whose page fails is skipped. When every location
// fails the error wraps ErrScrapeUnavailable. Zero listings is not an error.
func (c *Client) Search(ctx context.Context, renderer Renderer, terms, locations []string) (*Listings, *Report, error) {
	report := &Report{Locations: len(locations)}

	if len(terms) == 0 {
		return nil, report, errors.New("search terms are required")
	}
	if len(locations) == 0 {
		return nil, report, errors.New("at least one location is required")
	}

	listings := &Listings{}

	for _, location := range locations {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, report, fmt.Errorf("waiting for page slot: %w", err)
		}

		pageURL, err := BuildSearchURL(c.BaseURL, terms, location)
		if err != nil {
			return nil, report, err
		}

		logger := c.logger.With(zap.String("location", location))

		pageCtx, cancel := context.WithTimeout(ctx, c.PageTimeout)
		html, err := renderer.Render(pageCtx, pageURL)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, report, ctx.Err()
			}
			logger.Warn("loading location page failed. It will be skipped.",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			report.FailedLocations++
			continue
		}

		found, skipped, err := ParseCards(html, pageURL, location, c.PerLocationLimit)
		if err != nil {
			logger.Warn("parsing location page failed. It will be skipped.", zap.Error(err))
			report.FailedLocations++
			continue
		}

		for _, cardErr := range skipped {
			logger.Debug("skipping listing card", zap.Error(cardErr))
		}

		report.Cards += len(found) + len(skipped)
		report.SkippedCards += len(skipped)
		listings.Items = append(listings.Items, found...)

		logger.Info("location page scraped",
			zap.Int("listings", len(found)),
			zap.Int("skipped_cards", len(skipped)),
		)
	}

	if report.FailedLocations == report.Locations {
		return nil, report, fmt.Errorf("%w: all %d location pages failed", ErrScrapeUnavailable, report.Locations)
	}

	report.Duplicates = listings.Dedup()
	report.Found = listings.Len()

	return listings, report, nil
}
