// Package sandbox runs untrusted code in single-use Docker containers.
//
// Every execution gets a fresh container built from the per-language
// table: no network, hard memory and CPU ceilings, a read-only root
// filesystem, and a small writable tmpfs workspace. The submitted source
// travels into the container as a tar archive through the Docker API —
// it is never interpolated into a command line — and the container is
// force-removed after its single run, whether it succeeded, failed, or
// was killed at the timeout boundary.
package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/pairview/internal/executor"
	"github.com/sakif/pairview/internal/language"
)

// timedOutMessage is what the client sees instead of partial output when
// the wall-clock limit fires.
const timedOutMessage = "Execution timed out."

// removeTimeout bounds the cleanup call so a wedged daemon cannot hold
// the request goroutine.
const removeTimeout = 5 * time.Second

// Runner implements executor.Executor using Docker.
type Runner struct {
	cli       *client.Client
	languages *language.Table
	limiter   *Limiter
	logger    *slog.Logger
}

// New creates a Runner and pre-pulls the images for every locally routed
// language. A pull failure is logged but not fatal — the language simply
// provisioning-fails at request time until the image appears.
func New(languages *language.Table, limiter *Limiter, logger *slog.Logger) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: creating docker client: %w", err)
	}

	r := &Runner{
		cli:       cli,
		languages: languages,
		limiter:   limiter,
		logger:    logger,
	}

	for _, lang := range languages.LocalLanguages() {
		if err := r.pullImage(lang.Image); err != nil {
			logger.Warn("failed to pull sandbox image",
				slog.String("language", lang.Tag),
				slog.String("image", lang.Image),
				slog.String("error", err.Error()),
			)
		}
	}

	return r, nil
}

func (r *Runner) pullImage(ref string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	r.logger.Info("ensuring sandbox image is available", slog.String("image", ref))
	reader, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close shuts down the docker client.
func (r *Runner) Close() error {
	return r.cli.Close()
}

// Execute runs one request in a fresh sandbox and tears the sandbox down
// afterwards. Program outcomes — including timeouts and provisioning
// failures — are reported through the Result status, never as Go errors;
// the provisioner does not retry anything, because a crash or timeout of
// untrusted code is not assumed to be transient.
func (r *Runner) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	start := time.Now()

	lang, ok := r.languages.Lookup(req.Language)
	if !ok || lang.Route != language.RouteLocal {
		return &executor.Result{
			Status:   executor.StatusRejectedInput,
			Error:    fmt.Sprintf("language %q is not available in the local sandbox", req.Language),
			Duration: time.Since(start),
		}, nil
	}

	if err := r.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer r.limiter.Release()

	containerID, err := r.createContainer(ctx, lang)
	if err != nil {
		r.logger.Error("sandbox provisioning failed",
			slog.String("language", lang.Tag),
			slog.String("error", err.Error()),
		)
		return provisioningFailed(start), nil
	}

	// Always discard the container we created, whatever happens next.
	// One container serves exactly one execution.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()

		err := r.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{
			Force: true,
		})
		if err != nil {
			r.logger.Error("failed to remove container", slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		r.logger.Error("failed to start sandbox container", slog.String("error", err.Error()))
		return provisioningFailed(start), nil
	}

	// Materialize the source as a file in the workspace via the archive
	// API. Content goes over as bytes, so shell metacharacters in the
	// code are just bytes, not syntax.
	if err := r.copySource(ctx, containerID, lang.SourceFile, req.Code); err != nil {
		r.logger.Error("failed to copy source into sandbox", slog.String("error", err.Error()))
		return provisioningFailed(start), nil
	}

	// The timeout context governs only the run itself, not cleanup.
	executeCtx, executeCancel := context.WithTimeout(ctx, lang.Timeout)
	defer executeCancel()

	execConfig := container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   language.Workspace,
		Cmd:          lang.RunCmd,
	}

	execResp, err := r.cli.ContainerExecCreate(executeCtx, containerID, execConfig)
	if err != nil {
		r.logger.Error("failed to create exec", slog.String("error", err.Error()))
		return provisioningFailed(start), nil
	}

	attachResp, err := r.cli.ContainerExecAttach(executeCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		r.logger.Error("failed to attach to exec", slog.String("error", err.Error()))
		return provisioningFailed(start), nil
	}
	defer attachResp.Close()

	var stdout, stderr bytes.Buffer

	done := make(chan struct{})
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, _ = stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		close(done)
	}()

	select {
	case <-done:
		// Completed within the limit
	case <-executeCtx.Done():
		// The deferred force-remove kills the whole process group; the
		// partial output is deliberately replaced with a fixed message.
		return &executor.Result{
			Status:   executor.StatusTimedOut,
			Error:    timedOutMessage,
			ExitCode: 124,
			Duration: time.Since(start),
		}, nil
	}

	exitCode := 0
	if inspectResp, err := r.cli.ContainerExecInspect(ctx, execResp.ID); err == nil {
		exitCode = inspectResp.ExitCode
	}

	return mapOutcome(exitCode, stdout.String(), stderr.String(), time.Since(start)), nil
}

// createContainer builds a single-use container for one language with a
// sleep holding process — the actual run happens through exec so we can
// copy the source in first.
func (r *Runner) createContainer(ctx context.Context, lang language.Language) (string, error) {
	createCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	networkMode := container.NetworkMode(network.NetworkNone)
	if lang.Network {
		// Narrow exception for toolchains that must fetch artifacts on
		// first use. Never the default.
		networkMode = network.NetworkDefault
	}

	hostConfig := &container.HostConfig{
		NetworkMode: networkMode,
		Resources: container.Resources{
			Memory:   lang.MemoryLimit,
			NanoCPUs: int64(lang.CPULimit * 1e9),
		},
		AutoRemove: false,
		// Everything except the workspace and /tmp is read-only.
		ReadonlyRootfs: true,
		Tmpfs: map[string]string{
			language.Workspace: "rw,size=128m,mode=1777",
			"/tmp":             "rw,size=64m",
		},
	}

	resp, err := r.cli.ContainerCreate(createCtx, &container.Config{
		Image:        lang.Image,
		Cmd:          []string{"sleep", "infinity"},
		Tty:          false,
		AttachStdout: false,
		AttachStderr: false,
		User:         "nobody",
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	return resp.ID, nil
}

// copySource tar-encodes the submitted code and writes it into the
// container workspace through the archive API.
func (r *Runner) copySource(ctx context.Context, containerID, filename, code string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: filename,
		Mode: 0644,
		Size: int64(len(code)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing tar header: %w", err)
	}
	if _, err := tw.Write([]byte(code)); err != nil {
		return fmt.Errorf("writing tar body: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar: %w", err)
	}

	return r.cli.CopyToContainer(ctx, containerID, language.Workspace, &buf, container.CopyToContainerOptions{})
}

func provisioningFailed(start time.Time) *executor.Result {
	return &executor.Result{
		Status:   executor.StatusProvisioningFailed,
		Error:    "failed to provision execution environment",
		Duration: time.Since(start),
	}
}

// mapOutcome translates raw exit/output into the result contract:
// exit 0 is success with stdout as output; anything else is the
// program's own failure with stderr as the diagnostic, falling back to
// stdout when stderr is empty.
func mapOutcome(exitCode int, stdout, stderr string, elapsed time.Duration) *executor.Result {
	if exitCode == 0 {
		return &executor.Result{
			Status:   executor.StatusSuccess,
			Output:   stdout,
			Error:    stderr,
			ExitCode: 0,
			Duration: elapsed,
		}
	}

	diag := stderr
	if diag == "" {
		diag = stdout
	}
	return &executor.Result{
		Status:   executor.StatusNonZeroExit,
		Error:    diag,
		ExitCode: exitCode,
		Duration: elapsed,
	}
}
