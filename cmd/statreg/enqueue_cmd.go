package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/tigerroll/statreg/internal/app"
	storageAdapter "github.com/tigerroll/statreg/pkg/batch/adapter/storage"
	config "github.com/tigerroll/statreg/pkg/batch/core/config"
	model "github.com/tigerroll/statreg/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/statreg/pkg/batch/core/domain/repository"
)

type enqueueOptions struct {
	Upload     string
	Path       string
	Storage    string
	UnitType   string
	Mapping    string
	Delimiter  string
	SkipLines  int
	Operations string
	Priority   string
	UserID     string
}

// job validates the flags and builds the Pending job they describe.
func (o *enqueueOptions) job() (*model.Job, error) {
	if strings.TrimSpace(o.Path) == "" && o.Upload != "" {
		o.Path = path.Join("incoming", filepath.Base(o.Upload))
	}
	if strings.TrimSpace(o.Path) == "" {
		return nil, errors.New("--path or --upload is required")
	}
	unitType := model.UnitType(o.UnitType)
	if !unitType.Valid() {
		return nil, fmt.Errorf("--unit-type %q is not a known unit type", o.UnitType)
	}
	mapping, err := model.ParseMapping(o.Mapping)
	if err != nil {
		return nil, err
	}
	if len(mapping) == 0 {
		return nil, errors.New("--mapping is required")
	}
	ops := model.AllowedOperation(o.Operations)
	if !ops.CanCreate() && !ops.CanAlter() {
		return nil, fmt.Errorf("--operations must be Create, Alter or CreateAndAlter, got %q", o.Operations)
	}
	priority := model.Priority(o.Priority)
	switch priority {
	case model.PriorityNotTrusted, model.PriorityOk, model.PriorityTrusted:
	default:
		return nil, fmt.Errorf("--priority must be NotTrusted, Ok or Trusted, got %q", o.Priority)
	}
	if o.SkipLines < 0 {
		return nil, errors.New("--skip-lines must not be negative")
	}
	job := &model.Job{
		FileName:          path.Base(o.Path),
		FilePath:          o.Path,
		StorageRef:        o.Storage,
		UnitType:          unitType,
		Mapping:           mapping,
		CsvDelimiter:      o.Delimiter,
		SkipLines:         o.SkipLines,
		AllowedOperations: ops,
		Priority:          priority,
		UserID:            o.UserID,
	}
	if _, ok := job.Format(); !ok {
		return nil, fmt.Errorf("unsupported file type: %s", job.FileName)
	}
	return job, nil
}

type enqueueDeps struct {
	fx.In
	Jobs    repository.JobRepository
	Storage storageAdapter.StorageConnectionResolver
	Cfg     *config.ImportConfig
}

func newEnqueueCmd(root *rootOptions) *cobra.Command {
	opts := enqueueOptions{}

	cmd := &cobra.Command{
		Use:   "enqueue --path <object> --unit-type <type> --mapping <src:dst,...>",
		Short: "Queue a file for import, optionally uploading it first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := opts.job()
			if err != nil {
				return err
			}
			var deps enqueueDeps
			options := app.CommandOptions(root.embedded, root.loadOptions(), fx.Populate(&deps))
			return runOneShot(cmd.Context(), options, func(ctx context.Context) error {
				if opts.Upload != "" {
					if err := upload(ctx, deps, job, opts.Upload); err != nil {
						return err
					}
				}
				if err := deps.Jobs.Enqueue(ctx, job); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), job.ID)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Upload, "upload", "", "local file to upload to the storage before queueing")
	f.StringVar(&opts.Path, "path", "", "object name of the file in the storage")
	f.StringVar(&opts.Storage, "storage", "", "storage connection (default import.storage)")
	f.StringVar(&opts.UnitType, "unit-type", string(model.UnitTypeLegalUnit), "LegalUnit, LocalUnit, EnterpriseUnit or EnterpriseGroup")
	f.StringVar(&opts.Mapping, "mapping", "", "field mapping as source:target pairs separated by commas")
	f.StringVar(&opts.Delimiter, "delimiter", ",", `CSV delimiter; use \t for tab`)
	f.IntVar(&opts.SkipLines, "skip-lines", 0, "lines to skip before the header row")
	f.StringVar(&opts.Operations, "operations", string(model.OperationCreateAndAlter), "Create, Alter or CreateAndAlter")
	f.StringVar(&opts.Priority, "priority", string(model.PriorityOk), "NotTrusted, Ok or Trusted")
	f.StringVar(&opts.UserID, "user", os.Getenv("USER"), "user the job is recorded for")
	return cmd
}

func upload(ctx context.Context, deps enqueueDeps, job *model.Job, localPath string) error {
	storageName := job.StorageRef
	if storageName == "" {
		storageName = deps.Cfg.Storage
	}
	conn, err := deps.Storage.ResolveStorageConnection(ctx, storageName)
	if err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	return conn.Upload(ctx, "", job.FilePath, f, "application/octet-stream")
}
