package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"

	"github.com/ramparte/deployotron/internal/ops"
)

// buildOutputTail bounds how much build output a BuildError carries.
const buildOutputTail = 50

// BuildImage builds a container image from sourcePath. When the checkout
// has no Dockerfile, one is generated for the detected framework.
func (o *Ops) BuildImage(ctx context.Context, sourcePath, tag string, framework ops.Framework) error {
	dockerfile := filepath.Join(sourcePath, "Dockerfile")
	if _, err := os.Stat(dockerfile); os.IsNotExist(err) {
		o.log.Info("no Dockerfile in checkout, generating one", "framework", framework)
		if err := os.WriteFile(dockerfile, []byte(GenerateDockerfile(framework)), 0o644); err != nil {
			return &ops.BuildError{Tag: tag, Err: fmt.Errorf("write generated Dockerfile: %w", err)}
		}
	}

	buildCtx, err := archive.TarWithOptions(sourcePath, &archive.TarOptions{})
	if err != nil {
		return &ops.BuildError{Tag: tag, Err: fmt.Errorf("create build context: %w", err)}
	}
	defer buildCtx.Close()

	resp, err := o.docker.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return &ops.BuildError{Tag: tag, Err: err}
	}
	defer resp.Body.Close()

	output, err := drainStream(resp.Body)
	if err != nil {
		return &ops.BuildError{Tag: tag, Output: output, Err: err}
	}

	o.log.Info("image built", "tag", tag)
	return nil
}

// PushImage tags the local image for destinationURI and pushes it using
// the credentials from Authenticate.
func (o *Ops) PushImage(ctx context.Context, tag, destinationURI string) error {
	auth := o.getRegistryAuth()
	if auth == "" {
		return &ops.PushError{Tag: tag, Err: fmt.Errorf("not authenticated to registry")}
	}

	remote := fmt.Sprintf("%s:%s", destinationURI, versionOf(tag))
	if err := o.docker.ImageTag(ctx, tag, remote); err != nil {
		if dockerclient.IsErrNotFound(err) {
			return &ops.PushError{Tag: tag, Err: ops.ErrImageNotFound}
		}
		return &ops.PushError{Tag: tag, Err: fmt.Errorf("tag %s as %s: %w", tag, remote, err)}
	}

	resp, err := o.docker.ImagePush(ctx, remote, image.PushOptions{RegistryAuth: auth})
	if err != nil {
		return &ops.PushError{Tag: tag, Err: err}
	}
	defer resp.Close()

	if _, err := drainStream(resp); err != nil {
		return &ops.PushError{Tag: tag, Err: err}
	}

	o.log.Info("image pushed", "tag", tag, "destination", remote)
	return nil
}

// versionOf extracts the version part of an image tag, defaulting to
// "latest" when the tag has no colon.
func versionOf(tag string) string {
	if i := strings.LastIndex(tag, ":"); i >= 0 {
		return tag[i+1:]
	}
	return "latest"
}

// streamMessage is one JSON message of a Docker build or push stream.
type streamMessage struct {
	Stream      string `json:"stream"`
	Status      string `json:"status"`
	Error       string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

func (m streamMessage) errorMessage() string {
	if msg := strings.TrimSpace(m.Error); msg != "" {
		return msg
	}
	return strings.TrimSpace(m.ErrorDetail.Message)
}

func (m streamMessage) line() string {
	if s := strings.TrimSpace(m.Stream); s != "" {
		return s
	}
	return strings.TrimSpace(m.Status)
}

// drainStream consumes a Docker JSON message stream, returning the tail
// of its output and the first embedded error, if any.
func drainStream(r io.Reader) (string, error) {
	var lines []string
	decoder := json.NewDecoder(r)
	for {
		var msg streamMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return tail(lines), fmt.Errorf("decode output stream: %w", err)
		}
		if line := msg.line(); line != "" {
			lines = append(lines, line)
		}
		if errMsg := msg.errorMessage(); errMsg != "" {
			return tail(lines), fmt.Errorf("%s", errMsg)
		}
	}
	return tail(lines), nil
}

func tail(lines []string) string {
	if len(lines) > buildOutputTail {
		lines = lines[len(lines)-buildOutputTail:]
	}
	return strings.Join(lines, "\n")
}
