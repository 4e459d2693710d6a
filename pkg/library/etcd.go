package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdConfig configures an EtcdBackend.
type EtcdConfig struct {
	Endpoints []string
	// Namespace prefixes every key. Defaults to "gaffer".
	Namespace   string
	DialTimeout time.Duration
}

// EtcdBackend shares the library between processes through etcd. Keys are
// "/<namespace>/library/<table>/<id>".
type EtcdBackend struct {
	client    *clientv3.Client
	namespace string
}

// NewEtcdBackend connects to the configured endpoints.
func NewEtcdBackend(cfg EtcdConfig) (*EtcdBackend, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("library: etcd endpoints cannot be empty")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "gaffer"
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}
	return &EtcdBackend{client: cli, namespace: strings.Trim(cfg.Namespace, "/")}, nil
}

func (e *EtcdBackend) key(table Table, id string) string {
	return "/" + e.namespace + "/library/" + string(table) + "/" + id
}

// PutIfAbsent inserts when the key has never been created, otherwise it
// reads the stored value in the same transaction.
func (e *EtcdBackend) PutIfAbsent(ctx context.Context, table Table, id string, value []byte) ([]byte, bool, error) {
	key := e.key(table, id)
	resp, err := e.client.Txn(ctx).
		If(clientv3.Compare(clientv3.CreateRevision(key), "=", 0)).
		Then(clientv3.OpPut(key, string(value))).
		Else(clientv3.OpGet(key)).
		Commit()
	if err != nil {
		return nil, false, fmt.Errorf("etcd txn: %w", err)
	}
	if resp.Succeeded {
		return clone(value), true, nil
	}
	kvs := resp.Responses[0].GetResponseRange().GetKvs()
	if len(kvs) == 0 {
		return nil, false, fmt.Errorf("etcd txn: %s vanished", key)
	}
	return kvs[0].Value, false, nil
}

func (e *EtcdBackend) Get(ctx context.Context, table Table, id string) ([]byte, error) {
	resp, err := e.client.Get(ctx, e.key(table, id))
	if err != nil {
		return nil, fmt.Errorf("etcd get: %w", err)
	}
	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}
	return resp.Kvs[0].Value, nil
}

func (e *EtcdBackend) Close() error {
	return e.client.Close()
}
