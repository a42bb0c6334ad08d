package container

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"OffloadEngine/log"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"go.uber.org/zap"
)

// BuildImage builds the Dockerfile found in buildContextFolder and returns the build log.
func BuildImage(ctx context.Context, cli *client.Client, buildContextFolder, dockerfile, imageName string) ([]string, error) {
	log.L().Debug("Creating build context (tar archive)", zap.String("buildContextFolder", buildContextFolder))
	tarBuffer, err := createBuildContext(buildContextFolder)
	if err != nil {
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}

	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	log.L().Debug("Building Docker image", zap.String("image", imageName))
	imageBuildResponse, err := cli.ImageBuild(ctx, tarBuffer, types.ImageBuildOptions{
		Dockerfile: dockerfile,
		Tags:       []string{imageName},
		Version:    types.BuilderV1,
		Remove:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build Docker image: %w", err)
	}
	defer imageBuildResponse.Body.Close()

	var output []string
	scanner := bufio.NewScanner(imageBuildResponse.Body)
	for scanner.Scan() {
		var message jsonmessage.JSONMessage
		if err := json.Unmarshal(scanner.Bytes(), &message); err != nil {
			return output, fmt.Errorf("failed to unmarshal JSONMessage: %w", err)
		}
		if message.Error != nil {
			return output, message.Error
		}
		if line := strings.TrimRight(message.Stream, "\n"); line != "" {
			output = append(output, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return output, fmt.Errorf("failed to read build output: %w", err)
	}

	return output, nil
}

// createBuildContext creates a tar archive of the build context.
func createBuildContext(buildContextFolder string) (io.Reader, error) {
	buffer := new(bytes.Buffer)
	tarWriter := tar.NewWriter(buffer)

	err := filepath.Walk(buildContextFolder, func(path string, fileInfo os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fileInfo.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		header, err := tar.FileInfoHeader(fileInfo, fileInfo.Name())
		if err != nil {
			return err
		}
		header.Name, _ = filepath.Rel(buildContextFolder, path)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}
		_, err = io.Copy(tarWriter, f)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk context directory: %w", err)
	}
	if err := tarWriter.Close(); err != nil {
		return nil, err
	}

	return buffer, nil
}
