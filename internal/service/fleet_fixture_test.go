package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/container"
	"github.com/GoPolymarket/botfleet/internal/credentials"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/telemetry"
	"github.com/stretchr/testify/require"
)

type fakeCanceller struct {
	mu        sync.Mutex
	addresses []string
	err       error
}

func (f *fakeCanceller) CancelAllOrders(ctx context.Context, address string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.addresses = append(f.addresses, address)
	return 2, nil
}

func (f *fakeCanceller) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.addresses...)
}

type fakeWallets map[string]string

func (w fakeWallets) GetWalletAddress(account string) (string, error) {
	if addr, ok := w[account]; ok {
		return addr, nil
	}
	return "", apperrors.Newf(apperrors.ErrWalletNotFound, "no wallet for %s", account)
}

type fleetFixture struct {
	cfg       *config.Config
	store     *credentials.Store
	runtime   *container.Fake
	broker    *telemetry.MemoryBroker
	canceller *fakeCanceller
}

func newFleetFixture(t *testing.T) *fleetFixture {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default().WithBotsRoot(root)
	cfg.Broker.CommandTimeout = time.Second
	cfg.Wallet.SecretKeyPath = filepath.Join(root, "secret_key.txt")

	master := filepath.Join(cfg.Paths.Credentials, cfg.Paths.MasterAccount)
	require.NoError(t, os.MkdirAll(master, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(master, "conf_client.yml"), []byte("instance_id: master\nlog_level: INFO\n"), 0644))

	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Paths.Conf, "scripts"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Paths.Conf, "controllers"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Conf, "scripts", "v2_with_controllers.py"), []byte("# script\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Conf, "controllers", "bollinger.yml"), []byte("controller_name: bollinger_v1\n"), 0644))

	return &fleetFixture{
		cfg:       cfg,
		store:     credentials.NewStore(cfg),
		runtime:   container.NewFake(),
		broker:    telemetry.NewMemoryBroker(),
		canceller: &fakeCanceller{},
	}
}

func (f *fleetFixture) orchestrator(t *testing.T, wallets WalletLookup) *FleetOrchestrator {
	t.Helper()
	o := NewFleetOrchestrator(f.cfg, f.runtime, f.broker, wallets, f.canceller)
	t.Cleanup(o.Close)
	return o
}

// respond plays the worker side of a command: every request gets reply, and the
// decoded request data is sent on the returned channel.
func (f *fleetFixture) respond(t *testing.T, instanceID, command string, reply map[string]any) <-chan map[string]any {
	t.Helper()
	sub, err := f.broker.Subscribe(context.Background(), telemetry.CommandTopic(f.cfg.Broker.TopicPrefix, instanceID, command))
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })

	seen := make(chan map[string]any, 8)
	go func() {
		for msg := range sub.Messages() {
			var req telemetry.CommandRequest
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				continue
			}
			var data map[string]any
			_ = json.Unmarshal(req.Data, &data)
			select {
			case seen <- data:
			default:
			}
			body, _ := json.Marshal(reply)
			out, _ := json.Marshal(telemetry.CommandReply{Header: req.Header, Data: body})
			_ = f.broker.Publish(context.Background(), req.Header.ReplyTo, out)
		}
	}()
	return seen
}
