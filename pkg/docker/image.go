package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/moby/go-archive"

	"github.com/sandboxkit/sandboxctl/internal/logger"
)

// buildMessage is one line of the image build JSON stream.
type buildMessage struct {
	Stream      string `json:"stream"`
	ErrorMsg    string `json:"error"`
	ErrorDetail struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// BuildImage builds an image from contextDir and tags it with ref. The
// build context is tarred with the same exclude patterns the daemon's CLI
// would apply to a .dockerignore-free directory, plus the given excludes.
func (c *Client) BuildImage(ctx context.Context, contextDir, dockerfile, ref string, excludes []string, buildArgs map[string]*string) error {
	buildCtx, err := archive.TarWithOptions(contextDir, &archive.TarOptions{
		ExcludePatterns: excludes,
	})
	if err != nil {
		return fmt.Errorf("failed to tar build context %s: %w", contextDir, err)
	}
	defer buildCtx.Close()

	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	resp, err := c.api.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{ref},
		Dockerfile: dockerfile,
		Remove:     true,
		BuildArgs:  buildArgs,
	})
	if err != nil {
		return fmt.Errorf("failed to build image %s: %w", ref, err)
	}
	defer resp.Body.Close()

	// The build API reports failures inside the JSON stream, not through
	// the response status. Drain the stream and surface the first error.
	decoder := json.NewDecoder(resp.Body)
	for {
		var msg buildMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("failed to read build output for %s: %w", ref, err)
		}
		if msg.ErrorMsg != "" {
			detail := msg.ErrorDetail.Message
			if detail == "" {
				detail = msg.ErrorMsg
			}
			return fmt.Errorf("image build failed for %s: %s", ref, detail)
		}
		if line := strings.TrimSpace(msg.Stream); line != "" {
			logger.Debug("build", logger.KeyImage, ref, "output", line)
		}
	}

	logger.Info("image built", logger.KeyImage, ref)
	return nil
}
