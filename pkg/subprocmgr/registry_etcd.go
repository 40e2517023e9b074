package subprocmgr

import (
	"context"
	"fmt"
	"strconv"

	"github.com/baketa-translate/core/pkg/storage/xetcd"
)

// etcdRegistry is a PortRegistry backed by etcd, for multi-instance
// deployments where a local JSON file can't be shared across hosts.
type etcdRegistry struct {
	client *xetcd.Client
	prefix string
}

// NewEtcdRegistry returns a PortRegistry backed by an etcd client,
// keying entries under prefix+langPair.
func NewEtcdRegistry(client *xetcd.Client, prefix string) PortRegistry {
	return &etcdRegistry{client: client, prefix: prefix}
}

func (r *etcdRegistry) key(langPair string) string {
	return r.prefix + langPair
}

func (r *etcdRegistry) Lookup(langPair string) (int, bool, error) {
	ctx := context.Background()
	val, err := r.client.Get(ctx, r.key(langPair))
	if xetcd.IsKeyNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("subprocmgr: etcd lookup: %w", err)
	}
	port, err := strconv.Atoi(string(val))
	if err != nil {
		return 0, false, fmt.Errorf("subprocmgr: etcd registry value %q: %w", val, err)
	}
	return port, true, nil
}

func (r *etcdRegistry) Store(langPair string, port int) error {
	ctx := context.Background()
	if err := r.client.Put(ctx, r.key(langPair), []byte(strconv.Itoa(port))); err != nil {
		return fmt.Errorf("subprocmgr: etcd store: %w", err)
	}
	return nil
}
