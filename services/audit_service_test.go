package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/models"
	"github.com/petshop/backend/source"
)

type staticDirectory []models.DirectoryEntry

func (d staticDirectory) ListAll(context.Context) ([]models.DirectoryEntry, error) { return d, nil }

type staticIndex map[string]struct{}

func (i staticIndex) ProjectNames(context.Context) (map[string]struct{}, error) { return i, nil }

type lookupFunc func(name string) (*source.ProjectInfo, error)

func (f lookupFunc) FetchProject(_ context.Context, name string) (*source.ProjectInfo, error) {
	return f(name)
}

func TestRemovedPackages(t *testing.T) {
	directory := staticDirectory{
		{Name: "requests", ID: 1},
		{Name: "Typing_Extensions", ID: 2},
		{Name: "left-pad", ID: 3},
		{Name: "lagging", ID: 4},
	}
	index := staticIndex{"requests": {}, "typing-extensions": {}}
	var looked []string
	lookup := lookupFunc(func(name string) (*source.ProjectInfo, error) {
		looked = append(looked, name)
		if name == "lagging" {
			return &source.ProjectInfo{Name: name}, nil
		}
		return nil, fmt.Errorf("%w: pypi project %s", source.ErrNotFound, name)
	})

	audit := NewAuditService(directory, index, lookup, log.New(io.Discard))
	removed, err := audit.RemovedPackages(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.DirectoryEntry{{Name: "left-pad", ID: 3}}, removed)
	assert.Equal(t, []string{"left-pad", "lagging"}, looked)
}

func TestRemovedPackagesNetworkFailure(t *testing.T) {
	directory := staticDirectory{{Name: "left-pad", ID: 3}}
	lookup := lookupFunc(func(string) (*source.ProjectInfo, error) {
		return nil, fmt.Errorf("%w: status 503", source.ErrNetwork)
	})

	audit := NewAuditService(directory, staticIndex{}, lookup, log.New(io.Discard))
	_, err := audit.RemovedPackages(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrCodeNetwork))
	assert.True(t, errors.Is(err, source.ErrNetwork))
}
