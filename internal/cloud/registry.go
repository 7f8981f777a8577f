package cloud

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/docker/docker/api/types/registry"

	"github.com/ramparte/deployotron/internal/ops"
)

// EnsureRegistry returns the URI of the named ECR repository, creating it
// on first use. Describing an existing repository creates nothing, which
// makes the call idempotent.
func (o *Ops) EnsureRegistry(ctx context.Context, name string) (string, error) {
	out, err := o.ecr.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{name},
	})
	if err == nil && len(out.Repositories) > 0 {
		return aws.ToString(out.Repositories[0].RepositoryUri), nil
	}

	var notFound *ecrtypes.RepositoryNotFoundException
	if err != nil && !errors.As(err, &notFound) {
		return "", &ops.RegistryError{Name: name, Err: err}
	}

	created, err := o.ecr.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: aws.String(name),
	})
	if err != nil {
		return "", &ops.RegistryError{Name: name, Err: err}
	}

	o.log.Info("registry created", "name", name)
	return aws.ToString(created.Repository.RepositoryUri), nil
}

// Authenticate obtains an ECR authorization token and keeps it for
// subsequent pushes.
func (o *Ops) Authenticate(ctx context.Context) error {
	out, err := o.ecr.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return &ops.AuthError{Err: err}
	}
	if len(out.AuthorizationData) == 0 {
		return &ops.AuthError{Err: fmt.Errorf("no authorization data returned")}
	}

	data := out.AuthorizationData[0]
	decoded, err := base64.StdEncoding.DecodeString(aws.ToString(data.AuthorizationToken))
	if err != nil {
		return &ops.AuthError{Err: fmt.Errorf("decode authorization token: %w", err)}
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return &ops.AuthError{Err: fmt.Errorf("malformed authorization token")}
	}

	authCfg := registry.AuthConfig{
		Username:      parts[0],
		Password:      parts[1],
		ServerAddress: aws.ToString(data.ProxyEndpoint),
	}
	encoded, err := json.Marshal(authCfg)
	if err != nil {
		return &ops.AuthError{Err: err}
	}

	o.setRegistryAuth(base64.URLEncoding.EncodeToString(encoded))
	return nil
}
