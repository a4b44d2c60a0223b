package jobboard

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spigell/cv-matcher/internal/utils"
)

type Listing struct {
	Title    string `json:"title"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Salary   string `json:"salary"`
	Link     string `json:"link"`
	Posted   string `json:"posted"`
}

// Key identifies a listing within a batch: title, company and link, each
// lower-cased with whitespace collapsed.
func (l *Listing) Key() string {
	return strings.Join([]string{
		utils.Normalize(l.Title),
		utils.Normalize(l.Company),
		utils.Normalize(l.Link),
	}, "\x1f")
}

type Listings struct {
	Items []*Listing
}

func (l *Listings) Len() int {
	return len(l.Items)
}

// Dedup drops listings with an already seen Key, keeping the first
// occurrence and the original order. It returns how many were dropped.
func (l *Listings) Dedup() int {
	seen := make(map[string]struct{}, len(l.Items))
	kept := l.Items[:0]
	for _, listing := range l.Items {
		key := listing.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, listing)
	}

	dropped := len(l.Items) - len(kept)
	clear(l.Items[len(kept):])
	l.Items = kept
	return dropped
}

// ExcludeCompanies removes listings posted by the given companies (compared
// normalized) and returns the links of removed listings.
func (l *Listings) ExcludeCompanies(companies []string) []string {
	if len(companies) == 0 {
		return nil
	}

	targets := make(map[string]struct{}, len(companies))
	for _, company := range companies {
		targets[utils.Normalize(company)] = struct{}{}
	}

	var excluded []string
	kept := make([]*Listing, 0, len(l.Items))
	for _, listing := range l.Items {
		if _, ok := targets[utils.Normalize(listing.Company)]; ok {
			excluded = append(excluded, listing.Link)
			continue
		}
		kept = append(kept, listing)
	}
	l.Items = kept

	return excluded
}

// ReportByCompany groups listings by company.
func (l *Listings) ReportByCompany() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, listing := range l.Items {
		report[listing.Company] = append(report[listing.Company], map[string]string{
			"title":    listing.Title,
			"location": listing.Location,
			"salary":   listing.Salary,
			"link":     listing.Link,
		})
	}
	return report
}

func (l *Listings) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "listings_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(l); err != nil {
		return "", fmt.Errorf("encode listings: %w", err)
	}
	return file.Name(), nil
}
