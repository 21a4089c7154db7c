// source/pypi.go
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/utils"
)

// ProjectInfo is the part of the PyPI JSON API response the audit needs.
type ProjectInfo struct {
	Name    string
	Version string
	Summary string
}

// PyPIClient talks to the PyPI JSON API (https://pypi.org/pypi/<name>/json).
type PyPIClient struct {
	http     *http.Client
	baseURL  string
	attempts int
	delay    time.Duration
}

func NewPyPIClient(baseURL string, client *http.Client) *PyPIClient {
	if client == nil {
		client = NewHTTPClient()
	}
	return &PyPIClient{
		http:     client,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		attempts: 3,
		delay:    time.Second,
	}
}

// FetchProject returns the latest release metadata of a project. When PyPI
// does not know the name the error has code NOT_FOUND and wraps ErrNotFound;
// other failures are NETWORK_ERROR.
func (c *PyPIClient) FetchProject(ctx context.Context, name string) (*ProjectInfo, error) {
	name = utils.NormalizePackageName(name)
	endpoint := fmt.Sprintf("%s/%s/json", c.baseURL, url.PathEscape(name))

	var data struct {
		Info struct {
			Name    string `json:"name"`
			Version string `json:"version"`
			Summary string `json:"summary"`
		} `json:"info"`
	}
	err := retry(ctx, c.attempts, c.delay, func() error {
		body, err := get(ctx, c.http, endpoint, "application/json")
		if err != nil {
			return err
		}
		defer body.Close()
		return json.NewDecoder(body).Decode(&data)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrCodeNotFound, err, "pypi project %s", name)
		}
		return nil, apperrors.Wrap(apperrors.ErrCodeNetwork, err, "fetch pypi project %s", name)
	}
	return &ProjectInfo{Name: data.Info.Name, Version: data.Info.Version, Summary: data.Info.Summary}, nil
}
