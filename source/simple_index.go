// source/simple_index.go
package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/petshop/backend/utils"
)

// SimpleIndex reads the PEP 503 simple repository index, the page listing
// every project PyPI currently serves.
type SimpleIndex struct {
	http     *http.Client
	url      string
	attempts int
	delay    time.Duration
}

func NewSimpleIndex(indexURL string, client *http.Client) *SimpleIndex {
	if client == nil {
		client = NewHTTPClient()
	}
	return &SimpleIndex{http: client, url: indexURL, attempts: 3, delay: time.Second}
}

// ProjectNames returns the normalized names of all projects in the index.
func (s *SimpleIndex) ProjectNames(ctx context.Context) (map[string]struct{}, error) {
	var names map[string]struct{}
	err := retry(ctx, s.attempts, s.delay, func() error {
		body, err := get(ctx, s.http, s.url, "text/html")
		if err != nil {
			return err
		}
		defer body.Close()

		doc, err := goquery.NewDocumentFromReader(body)
		if err != nil {
			return fmt.Errorf("failed to parse simple index: %w", err)
		}

		names = make(map[string]struct{})
		doc.Find("a").Each(func(_ int, a *goquery.Selection) {
			name := strings.TrimSpace(a.Text())
			if name == "" {
				return
			}
			names[utils.NormalizePackageName(name)] = struct{}{}
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
