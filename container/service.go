package container

import (
	"context"
	"fmt"

	"OffloadEngine/errs"
	"OffloadEngine/executor"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

type operation func(ctx context.Context, cli *client.Client, input map[string]any) (any, error)

var operations = map[string]operation{
	"ping":            ping,
	"info":            info,
	"containerList":   containerList,
	"imageList":       imageList,
	"imageBuild":      imageBuild,
	"containerCreate": containerCreate,
	"containerStart":  containerStart,
	"containerStop":   containerStop,
	"containerRemove": containerRemove,
	"containerWrite":  containerWrite,
	"containerExec":   containerExec,
	"containerRun":    containerRun,
}

// Service is a Docker Engine API client exposed as an executor.Client.
type Service struct {
	cli *client.Client
}

// NewService connects to the Docker daemon. Recognized options are host and apiVersion; without
// host the DOCKER_* environment is used. Headers are sent with every API request.
func NewService(ctx context.Context, options map[string]any, headers map[string]string) (executor.Client, error) {
	host, err := executor.String(options, "host")
	if err != nil {
		return nil, err
	}
	apiVersion, err := executor.String(options, "apiVersion")
	if err != nil {
		return nil, err
	}

	opts := []client.Opt{client.FromEnv}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	if apiVersion != "" {
		opts = append(opts, client.WithVersion(apiVersion))
	} else {
		opts = append(opts, client.WithAPIVersionNegotiation())
	}
	if len(headers) > 0 {
		opts = append(opts, client.WithHTTPHeaders(headers))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidOptions, fmt.Sprintf("failed to create Docker client: %v", err))
	}
	return &Service{cli: cli}, nil
}

func (s *Service) Invoke(ctx context.Context, operation string, input map[string]any) (any, error) {
	op, ok := operations[operation]
	if !ok {
		return nil, errs.New(errs.ErrUnknownOperation, ServiceName+"."+operation)
	}
	return op(ctx, s.cli, input)
}

func (s *Service) Close() error {
	return s.cli.Close()
}

func ping(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	return cli.Ping(ctx)
}

func info(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	return cli.Info(ctx)
}

func containerList(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	all, err := executor.Bool(input, "all")
	if err != nil {
		return nil, err
	}
	return cli.ContainerList(ctx, container.ListOptions{All: all})
}

func imageList(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	all, err := executor.Bool(input, "all")
	if err != nil {
		return nil, err
	}
	return cli.ImageList(ctx, image.ListOptions{All: all})
}

func imageBuild(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	contextDir, err := executor.RequiredString(input, "contextDir")
	if err != nil {
		return nil, err
	}
	tag, err := executor.RequiredString(input, "tag")
	if err != nil {
		return nil, err
	}
	dockerfile, err := executor.String(input, "dockerfile")
	if err != nil {
		return nil, err
	}

	output, err := BuildImage(ctx, cli, contextDir, dockerfile, tag)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tag": tag, "output": output}, nil
}

func containerCreate(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	imageName, err := executor.RequiredString(input, "image")
	if err != nil {
		return nil, err
	}
	env, err := executor.Strings(input, "env")
	if err != nil {
		return nil, err
	}
	cmd, err := executor.Strings(input, "cmd")
	if err != nil {
		return nil, err
	}
	name, err := executor.String(input, "name")
	if err != nil {
		return nil, err
	}

	containerID, err := CreateContainer(ctx, cli, imageName, env, cmd, name)
	if err != nil {
		return nil, err
	}
	return map[string]any{"id": containerID}, nil
}

func containerStart(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	return withContainerID(input, func(containerID string) error {
		return StartContainer(ctx, cli, containerID)
	})
}

func containerStop(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	return withContainerID(input, func(containerID string) error {
		return StopContainer(ctx, cli, containerID)
	})
}

func containerRemove(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	return withContainerID(input, func(containerID string) error {
		return RemoveContainer(ctx, cli, containerID)
	})
}

func containerWrite(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	fileName, err := executor.RequiredString(input, "fileName")
	if err != nil {
		return nil, err
	}
	content, err := executor.String(input, "content")
	if err != nil {
		return nil, err
	}
	path, err := executor.String(input, "path")
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = containerWorkingDirectory
	}

	return withContainerID(input, func(containerID string) error {
		return WriteTextToContainer(ctx, cli, containerID, path, fileName, content, 0644)
	})
}

func containerExec(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	containerID, err := executor.RequiredString(input, "id")
	if err != nil {
		return nil, err
	}
	cmd, err := executor.Strings(input, "cmd")
	if err != nil {
		return nil, err
	}
	if len(cmd) == 0 {
		return nil, errs.New(errs.ErrInvalidInput, "cmd is required")
	}
	return ExecSync(ctx, cli, containerID, cmd)
}

func containerRun(ctx context.Context, cli *client.Client, input map[string]any) (any, error) {
	imageName, err := executor.RequiredString(input, "image")
	if err != nil {
		return nil, err
	}
	script, err := executor.RequiredString(input, "script")
	if err != nil {
		return nil, err
	}
	env, err := executor.Strings(input, "env")
	if err != nil {
		return nil, err
	}
	timeout, err := executor.Duration(input, "timeout", 0)
	if err != nil {
		return nil, err
	}

	files := make(map[string]string)
	if raw, ok := input["files"].(map[string]any); ok {
		for name, content := range raw {
			s, ok := content.(string)
			if !ok {
				return nil, errs.New(errs.ErrInvalidInput, fmt.Sprintf("files.%s must be a string", name))
			}
			files[name] = s
		}
	}

	return Run(ctx, cli, RunRequest{
		Image:                imageName,
		EnvironmentVariables: env,
		Files:                files,
		Script:               script,
		Timeout:              timeout,
	})
}

func withContainerID(input map[string]any, fn func(containerID string) error) (any, error) {
	containerID, err := executor.RequiredString(input, "id")
	if err != nil {
		return nil, err
	}
	if err := fn(containerID); err != nil {
		return nil, err
	}
	return map[string]any{"id": containerID}, nil
}
