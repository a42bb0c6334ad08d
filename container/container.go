package container

import (
	"archive/tar"
	"bytes"
	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

type ExecResult struct {
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

func CreateContainer(ctx context.Context, cli *client.Client, image string, environmentVariables []string, cmd []string, containerName string) (string, error) {
	response, err := cli.ContainerCreate(ctx, &container.Config{
		Image:        image,
		Env:          environmentVariables,
		Cmd:          cmd,
		WorkingDir:   containerWorkingDirectory,
		Tty:          false,
		OpenStdin:    true,
		AttachStdout: true,
		AttachStderr: true,
	}, nil, nil, nil, containerName)
	if err != nil {
		return "", err
	}

	return response.ID, nil
}

func StartContainer(ctx context.Context, cli *client.Client, containerID string) error {
	return cli.ContainerStart(ctx, containerID, container.StartOptions{})
}

func StopContainer(ctx context.Context, cli *client.Client, containerID string) error {
	return cli.ContainerStop(ctx, containerID, container.StopOptions{})
}

func RemoveContainer(ctx context.Context, cli *client.Client, containerID string) error {
	return cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

func WriteTextToContainer(ctx context.Context, cli *client.Client, containerID, path, fileName, content string, mode int64) error {
	tarBuffer := bytes.NewBuffer(nil)
	tarWriter := tar.NewWriter(tarBuffer)

	header := &tar.Header{
		Name: fileName,
		Mode: mode,
		Size: int64(len(content)),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return err
	}
	if _, err := tarWriter.Write([]byte(content)); err != nil {
		return err
	}
	if err := tarWriter.Close(); err != nil {
		return err
	}

	return cli.CopyToContainer(ctx, containerID, path, tarBuffer, container.CopyToContainerOptions{})
}

// ExecSync runs cmd inside a running container and collects its output and exit code.
func ExecSync(ctx context.Context, cli *client.Client, containerID string, cmd []string) (*ExecResult, error) {
	execConfig, err := cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          false,
	})
	if err != nil {
		return nil, err
	}

	hijackedResponse, err := cli.ContainerExecAttach(ctx, execConfig.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, err
	}
	defer hijackedResponse.Close()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	if _, err = stdcopy.StdCopy(stdout, stderr, hijackedResponse.Reader); err != nil {
		return nil, err
	}

	execInspectResponse, err := cli.ContainerExecInspect(ctx, execConfig.ID)
	if err != nil {
		return nil, err
	}

	return &ExecResult{
		ExitCode: execInspectResponse.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
