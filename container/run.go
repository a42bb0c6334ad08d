package container

import (
	"context"
	"fmt"
	"time"

	"OffloadEngine/log"

	"github.com/docker/docker/client"
	"go.uber.org/zap"
)

type RunRequest struct {
	Image                string
	EnvironmentVariables []string
	// Files are written to the working directory before the script runs.
	Files   map[string]string
	Script  string
	Timeout time.Duration
}

type RunResult struct {
	ContainerID   string      `json:"containerId"`
	Status        string      `json:"status"`
	Result        *ExecResult `json:"result,omitempty"`
	ExecutionTime int64       `json:"executionTime"`
}

// Run starts a throwaway container, runs the script inside it and removes the container.
func Run(ctx context.Context, cli *client.Client, request RunRequest) (*RunResult, error) {
	log.L().Debug("Creating Docker container", zap.String("image", request.Image))
	containerID, err := CreateContainer(ctx, cli, request.Image, request.EnvironmentVariables, []string{defaultShell}, "")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := RemoveContainer(context.WithoutCancel(ctx), cli, containerID); err != nil {
			log.L().Warn("Cannot remove container", zap.String("containerID", containerID), zap.Error(err))
		}
	}()

	log.L().Debug("Starting Docker container", zap.String("containerID", containerID))
	if err := StartContainer(ctx, cli, containerID); err != nil {
		return nil, err
	}

	for name, content := range request.Files {
		log.L().Debug("Copying file to container", zap.String("containerID", containerID), zap.String("file", name))
		if err := WriteTextToContainer(ctx, cli, containerID, containerWorkingDirectory, name, content, 0644); err != nil {
			return nil, fmt.Errorf("failed to copy %s: %w", name, err)
		}
	}
	if err := WriteTextToContainer(ctx, cli, containerID, containerWorkingDirectory, scriptFileName, request.Script, 0755); err != nil {
		return nil, fmt.Errorf("failed to copy script: %w", err)
	}

	runContext := ctx
	if request.Timeout > 0 {
		var cancel context.CancelFunc
		runContext, cancel = context.WithTimeout(ctx, request.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	result, err := ExecSync(runContext, cli, containerID, []string{defaultShell, scriptPath})
	elapsed := time.Since(startTime).Milliseconds()
	if err != nil {
		if runContext.Err() != nil {
			return &RunResult{ContainerID: containerID, Status: "Aborted", ExecutionTime: elapsed}, runContext.Err()
		}
		return nil, err
	}
	log.L().Debug("Executed script", zap.String("containerID", containerID), zap.Int("exitCode", result.ExitCode))

	if err := StopContainer(ctx, cli, containerID); err != nil {
		log.L().Warn("Cannot stop container", zap.String("containerID", containerID), zap.Error(err))
	}

	return &RunResult{
		ContainerID:   containerID,
		Status:        "Finished",
		Result:        result,
		ExecutionTime: elapsed,
	}, nil
}
