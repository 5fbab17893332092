package transfer

import (
	"context"
	"fmt"

	"sftpush/pkg/logger"
	"sftpush/pkg/storage"
)

// UploadContext is threaded through every stage hook. Destination may be rewritten by a
// stage and the updated value is handed to the next hook. FinalDestination never changes.
type UploadContext struct {
	LocalPath        string
	Destination      string
	FinalDestination string
}

// Stage is one step of the upload pipeline.
type Stage interface {
	Name() string
	PreUpload(ctx context.Context, uc UploadContext) (UploadContext, error)
	Transfer(ctx context.Context, uc UploadContext) (UploadContext, error)
	PostUpload(ctx context.Context, uc UploadContext) (UploadContext, error)
}

// passthrough supplies no-op hooks for stages that only act in some phases.
type passthrough struct{}

func (passthrough) PreUpload(_ context.Context, uc UploadContext) (UploadContext, error) {
	return uc, nil
}

func (passthrough) Transfer(_ context.Context, uc UploadContext) (UploadContext, error) {
	return uc, nil
}

func (passthrough) PostUpload(_ context.Context, uc UploadContext) (UploadContext, error) {
	return uc, nil
}

// Pipeline runs its stages innermost first: every stage's PreUpload, then every Transfer,
// then every PostUpload. A pipeline without stages does nothing.
type Pipeline struct {
	stages []Stage
	logger *logger.Logger
}

func NewPipeline(log *logger.Logger, stages ...Stage) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	return &Pipeline{stages: stages, logger: log}
}

func (p *Pipeline) Stages() []Stage {
	return p.stages
}

var phases = []struct {
	name string
	hook func(Stage, context.Context, UploadContext) (UploadContext, error)
}{
	{name: "pre_upload", hook: Stage.PreUpload},
	{name: "transfer", hook: Stage.Transfer},
	{name: "post_upload", hook: Stage.PostUpload},
}

// Run uploads one local file to destination.
func (p *Pipeline) Run(ctx context.Context, localPath, destination string) error {
	uc := UploadContext{
		LocalPath:        localPath,
		Destination:      destination,
		FinalDestination: destination,
	}

	for _, phase := range phases {
		for _, stage := range p.stages {
			if err := ctx.Err(); err != nil {
				return err
			}

			p.logger.Debug("running upload hook", map[string]any{
				"phase":       phase.name,
				"stage":       stage.Name(),
				"local_path":  uc.LocalPath,
				"remote_path": uc.Destination,
			})

			next, err := phase.hook(stage, ctx, uc)
			if err != nil {
				return fmt.Errorf("%s %s: %w", stage.Name(), phase.name, err)
			}
			uc = next
		}
	}
	return nil
}

// BuildPipeline assembles the stages required by req around the base transfer.
func BuildPipeline(fs storage.RemoteFileSystem, req Request, log *logger.Logger) *Pipeline {
	stages := []Stage{newTransferStage(fs, log)}
	if req.UploadPrefix != "" {
		stages = append(stages, newStagedRenameStage(fs, req.UploadPrefix, log))
	}
	if req.ComputeSignature {
		stages = append(stages, newSignatureStage(fs, log))
	}
	return NewPipeline(log, stages...)
}
