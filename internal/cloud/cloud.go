// Package cloud implements the deployment operations contract against a
// real container registry and compute platform: images are built and
// pushed with the Docker Engine API, registries and services live on AWS
// (ECR, ECS, CloudWatch Logs).
package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	dockerclient "github.com/docker/docker/client"
)

// Ops is the real implementation of ops.DeploymentOperations.
type Ops struct {
	ecr    *ecr.Client
	ecs    *ecs.Client
	logs   *cloudwatchlogs.Client
	docker *dockerclient.Client
	log    *slog.Logger
	region string

	mu           sync.Mutex
	registryAuth string // base64 auth config from Authenticate, consumed by pushes
}

// New builds a cloud backend from the ambient AWS credential chain and
// the local Docker daemon.
func New(ctx context.Context, log *slog.Logger) (*Ops, error) {
	if log == nil {
		log = slog.Default()
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}

	docker, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	return &Ops{
		ecr:    ecr.NewFromConfig(awsCfg),
		ecs:    ecs.NewFromConfig(awsCfg),
		logs:   cloudwatchlogs.NewFromConfig(awsCfg),
		docker: docker,
		log:    log,
		region: awsCfg.Region,
	}, nil
}

func (o *Ops) setRegistryAuth(auth string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.registryAuth = auth
}

func (o *Ops) getRegistryAuth() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.registryAuth
}
