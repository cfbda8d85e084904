package emulator

import (
	"context"
	"fmt"
	"path/filepath"

	"efm-go/internal/download"
	"efm-go/internal/efm"
	"efm-go/internal/pipeline"
)

// Deps are the collaborators of a launch.
type Deps struct {
	Download download.Deps
	Runner   Runner
	Logger   efm.Logger
}

// LaunchInput selects the emulator and what it runs.
type LaunchInput struct {
	EmulatorID int64
	FileSetID  int64
	// SystemID picks the per-system arguments. Zero uses the set's only
	// system, if it has exactly one.
	SystemID int64
	// FileName picks the file to start when the emulator extracts files.
	// Empty means the first file of the set.
	FileName string
}

// LaunchResult reports a finished emulator run.
type LaunchResult struct {
	Command  Command
	Download *download.Result
	Run      *Result
}

type launchContext struct {
	deps     Deps
	in       LaunchInput
	emulator *efm.Emulator
	file     string
	result   *LaunchResult
}

func (c *launchContext) logger() efm.Logger {
	if c.deps.Logger == nil {
		return efm.NewNopLogger()
	}
	return c.deps.Logger
}

func newLaunchPipeline(logger efm.Logger) *pipeline.Pipeline[*launchContext] {
	return pipeline.New[*launchContext](
		"launch-emulator", logger,
		pipeline.Func[*launchContext]{StepName: "fetch-emulator", Run: fetchEmulator},
		pipeline.Func[*launchContext]{StepName: "download-file-set", Run: downloadFileSet},
		pipeline.Func[*launchContext]{StepName: "select-file", Run: selectFile},
		pipeline.Func[*launchContext]{StepName: "build-command", Run: buildCommand},
		pipeline.Func[*launchContext]{StepName: "run-emulator", Run: runEmulator},
	)
}

func fetchEmulator(ctx context.Context, c *launchContext) pipeline.Action {
	em, err := c.deps.Download.Repos.Emulators().Get(ctx, c.in.EmulatorID)
	if err != nil {
		return pipeline.Abort(err)
	}
	if em == nil {
		return pipeline.Abort(efm.NewInvalidInputError(fmt.Sprintf("emulator %d not found", c.in.EmulatorID)))
	}
	c.emulator = em
	return pipeline.Continue
}

func downloadFileSet(ctx context.Context, c *launchContext) pipeline.Action {
	res, err := download.Download(ctx, c.deps.Download, download.Input{
		FileSetID:    c.in.FileSetID,
		ExtractFiles: c.emulator.ExtractFiles,
	})
	c.result.Download = res
	if err != nil {
		return pipeline.Abort(err)
	}
	return pipeline.Continue
}

func selectFile(ctx context.Context, c *launchContext) pipeline.Action {
	res := c.result.Download
	if !c.emulator.ExtractFiles {
		c.file = res.ExportedFiles[0]
		return pipeline.Continue
	}
	if len(res.Files) == 0 {
		return pipeline.Abort(efm.NewInvalidInputError("file set has no files"))
	}
	name := c.in.FileName
	if name == "" {
		name = res.Files[0].FileName
	}
	for _, f := range res.Files {
		if f.FileName == name {
			c.file = filepath.Join(res.ExportDir, f.FileName)
			return pipeline.Continue
		}
	}
	return pipeline.Abort(efm.NewInvalidInputError(fmt.Sprintf("%s is not in file set %d", name, c.in.FileSetID)))
}

func buildCommand(ctx context.Context, c *launchContext) pipeline.Action {
	systemID := c.in.SystemID
	if ids := c.result.Download.FileSet.SystemIDs; systemID == 0 && len(ids) == 1 {
		systemID = ids[0]
	}
	args, err := BuildArgs(c.emulator.Arguments, c.file, SystemArguments(c.emulator, systemID))
	if err != nil {
		return pipeline.Abort(err)
	}
	c.result.Command = Command{
		Executable: c.emulator.Executable,
		Args:       args,
		Dir:        c.result.Download.ExportDir,
	}
	return pipeline.Continue
}

func runEmulator(ctx context.Context, c *launchContext) pipeline.Action {
	c.logger().Info("starting emulator", "emulator", c.emulator.Name, "command", c.result.Command.String())
	res, err := c.deps.Runner.Run(ctx, c.result.Command)
	if err != nil {
		return pipeline.Abort(err)
	}
	c.result.Run = res
	if res.ExitCode != 0 {
		c.logger().Warn("emulator exited with error", "emulator", c.emulator.Name, "exit_code", res.ExitCode, "stderr", res.Stderr)
	}
	return pipeline.Continue
}

// Launch downloads a file set and runs an emulator on it. The emulator's exit
// code is reported in the result.
func Launch(ctx context.Context, deps Deps, in LaunchInput) (*LaunchResult, error) {
	if deps.Runner == nil {
		deps.Runner = ExecRunner{}
	}
	c := &launchContext{deps: deps, in: in, result: &LaunchResult{}}
	if err := newLaunchPipeline(deps.Logger).Run(ctx, c); err != nil {
		return c.result, err
	}
	return c.result, nil
}
