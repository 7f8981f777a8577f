package cloud

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/ramparte/deployotron/internal/ops"
)

// RegisterRevision registers an ECS task definition for the image and
// returns its ARN.
func (o *Ops) RegisterRevision(ctx context.Context, cfg ops.RevisionConfig) (string, error) {
	out, err := o.ecs.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  aws.String(cfg.Family),
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		Cpu:                     aws.String(strconv.Itoa(cfg.CPU)),
		Memory:                  aws.String(strconv.Itoa(cfg.Memory)),
		ContainerDefinitions: []ecstypes.ContainerDefinition{
			{
				Name:      aws.String(cfg.Container),
				Image:     aws.String(cfg.ImageURI),
				Essential: aws.Bool(true),
				PortMappings: []ecstypes.PortMapping{
					{
						ContainerPort: aws.Int32(int32(cfg.Port)),
						Protocol:      ecstypes.TransportProtocolTcp,
					},
				},
				LogConfiguration: &ecstypes.LogConfiguration{
					LogDriver: ecstypes.LogDriverAwslogs,
					Options: map[string]string{
						"awslogs-group":         cfg.LogGroup,
						"awslogs-region":        o.region,
						"awslogs-stream-prefix": cfg.Project,
					},
				},
			},
		},
	})
	if err != nil {
		return "", &ops.RegistrationError{Family: cfg.Family, Err: err}
	}

	arn := aws.ToString(out.TaskDefinition.TaskDefinitionArn)
	o.log.Info("revision registered", "family", cfg.Family, "arn", arn)
	return arn, nil
}

// UpdateService points the service at the registered revision and forces
// a new rollout.
func (o *Ops) UpdateService(ctx context.Context, cfg ops.RevisionConfig, revisionID string) error {
	desired := cfg.DesiredCount
	if desired <= 0 {
		desired = 1
	}

	_, err := o.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:            aws.String(cfg.Cluster),
		Service:            aws.String(cfg.Service),
		TaskDefinition:     aws.String(revisionID),
		DesiredCount:       aws.Int32(int32(desired)),
		ForceNewDeployment: true,
	})
	if err != nil {
		return &ops.ServiceUpdateError{Cluster: cfg.Cluster, Service: cfg.Service, Err: err}
	}
	return nil
}

// PollHealth samples the service's task counts.
func (o *Ops) PollHealth(ctx context.Context, cluster, service string) (ops.HealthStatus, error) {
	out, err := o.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  aws.String(cluster),
		Services: []string{service},
	})
	if err != nil {
		return ops.HealthStatus{}, fmt.Errorf("describe service %s/%s: %w", cluster, service, err)
	}
	if len(out.Services) == 0 {
		return ops.HealthStatus{}, fmt.Errorf("service %s/%s not found", cluster, service)
	}

	svc := out.Services[0]
	running := int(svc.RunningCount)
	desired := int(svc.DesiredCount)
	pending := int(svc.PendingCount)

	return ops.HealthStatus{
		Healthy: desired > 0 && running == desired && pending == 0,
		Running: running,
		Desired: desired,
		Pending: pending,
	}, nil
}

// FetchLogs reads up to limit lines from a CloudWatch log stream, oldest
// first.
func (o *Ops) FetchLogs(ctx context.Context, group, stream string, limit int) ([]string, error) {
	input := &cloudwatchlogs.GetLogEventsInput{
		LogGroupName:  aws.String(group),
		LogStreamName: aws.String(stream),
		StartFromHead: aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}

	out, err := o.logs.GetLogEvents(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("get log events %s/%s: %w", group, stream, err)
	}

	lines := make([]string, 0, len(out.Events))
	for _, event := range out.Events {
		lines = append(lines, aws.ToString(event.Message))
	}
	return lines, nil
}
