// services/audit_service.go
package services

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	apperrors "github.com/petshop/backend/errors"
	"github.com/petshop/backend/models"
	"github.com/petshop/backend/source"
	"github.com/petshop/backend/utils"
)

// DirectoryLister lists the whole package directory.
type DirectoryLister interface {
	ListAll(ctx context.Context) ([]models.DirectoryEntry, error)
}

// ProjectIndex lists the projects the registry currently serves.
type ProjectIndex interface {
	ProjectNames(ctx context.Context) (map[string]struct{}, error)
}

// ProjectLookup fetches a single project from the registry.
type ProjectLookup interface {
	FetchProject(ctx context.Context, name string) (*source.ProjectInfo, error)
}

// AuditService finds directory packages that PyPI no longer serves. Their
// ledger rows are never touched again by imports; the audit only reports them.
type AuditService struct {
	directory DirectoryLister
	index     ProjectIndex
	lookup    ProjectLookup
	logger    *log.Logger
}

func NewAuditService(directory DirectoryLister, index ProjectIndex, lookup ProjectLookup, logger *log.Logger) *AuditService {
	return &AuditService{directory: directory, index: index, lookup: lookup, logger: logger.WithPrefix("audit")}
}

// RemovedPackages returns the directory entries missing from the simple index
// whose JSON API page also answers 404.
func (a *AuditService) RemovedPackages(ctx context.Context) ([]models.DirectoryEntry, error) {
	entries, err := a.directory.ListAll(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeStorage, err, "load package directory")
	}
	served, err := a.index.ProjectNames(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeNetwork, err, "read simple index")
	}
	a.logger.Info("comparing directory with index", "directory", len(entries), "index", len(served))

	var removed []models.DirectoryEntry
	for _, e := range entries {
		if _, ok := served[utils.NormalizePackageName(e.Name)]; ok {
			continue
		}
		_, err := a.lookup.FetchProject(ctx, e.Name)
		switch {
		case err == nil:
			a.logger.Debug("missing from index but still served", "name", e.Name)
		case errors.Is(err, source.ErrNotFound):
			removed = append(removed, e)
		default:
			return nil, apperrors.Wrap(apperrors.ErrCodeNetwork, err, "look up %s", e.Name)
		}
	}
	return removed, nil
}
