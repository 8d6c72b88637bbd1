package config

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/aiga-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/aiga-lab/mnemosyne/pkg/repository/chromem"
	"github.com/aiga-lab/mnemosyne/pkg/repository/firestore"
	"github.com/aiga-lab/mnemosyne/pkg/repository/memory"
	"github.com/aiga-lab/mnemosyne/pkg/utils/logging"
)

// Repository holds CLI flags for the memory store backend
type Repository struct {
	backend     string
	projectID   string
	databaseID  string
	chromemPath string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Repository backend type (firestore, chromem or memory)",
			Value:       "firestore",
			Sources:     cli.EnvVars("MNEMOSYNE_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Sources:     cli.EnvVars("MNEMOSYNE_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Sources:     cli.EnvVars("MNEMOSYNE_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "chromem-path",
			Usage:       "Directory for chromem persistence (empty keeps data in memory only)",
			Sources:     cli.EnvVars("MNEMOSYNE_CHROMEM_PATH"),
			Destination: &r.chromemPath,
		},
	}
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// Configure initializes and returns a repository based on the configured backend.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context) (interfaces.Repository, error) {
	switch r.backend {
	case "firestore":
		if r.projectID == "" {
			return nil, goerr.New("firestore-project-id is required when using firestore backend")
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return repo, nil

	case "chromem":
		var opts []chromem.Option
		if r.chromemPath != "" {
			opts = append(opts, chromem.WithPersistentPath(r.chromemPath))
		}
		repo, err := chromem.New(opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize chromem repository")
		}
		logging.Default().Info("Using chromem repository", "path", r.chromemPath)
		return repo, nil

	case "memory":
		logging.Default().Info("Using in-memory repository (development mode)")
		return memory.New(), nil

	default:
		return nil, goerr.New("invalid repository backend", goerr.V("backend", r.backend))
	}
}
