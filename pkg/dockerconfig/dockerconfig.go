// Package dockerconfig reads the settings of the Docker CLI config file
// (~/.docker/config.json) that apply to Engine API requests.
package dockerconfig

import (
	"context"
	"maps"

	"github.com/containerd/log"
	dockerconfig "github.com/docker/cli/cli/config"
	dockerconfigfile "github.com/docker/cli/cli/config/configfile"
)

// Load reads the config file in dir. An empty dir means $DOCKER_CONFIG,
// falling back to ~/.docker.
func Load(dir string) (*dockerconfigfile.ConfigFile, error) {
	// Load does not raise an error on ENOENT
	return dockerconfig.Load(dir)
}

// HTTPHeaders returns the custom "HttpHeaders" the Docker CLI would send to
// the daemon. The result is never nil.
func HTTPHeaders(ctx context.Context, dir string) (map[string]string, error) {
	cf, err := Load(dir)
	if err != nil {
		return nil, err
	}
	if cf.CurrentContext != "" && cf.CurrentContext != "default" {
		// Docker contexts are not resolved; --docker-host or $DOCKER_HOST must point at the endpoint.
		log.G(ctx).Debugf("Ignoring Docker context %q set in %q", cf.CurrentContext, cf.Filename)
	}
	headers := make(map[string]string, len(cf.HTTPHeaders))
	maps.Copy(headers, cf.HTTPHeaders)
	return headers, nil
}
