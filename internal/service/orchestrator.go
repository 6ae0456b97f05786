package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GoPolymarket/botfleet/internal/archive"
	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/container"
	"github.com/GoPolymarket/botfleet/internal/credentials"
	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/pkg/fsutil"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"github.com/GoPolymarket/botfleet/internal/pkg/metrics"
	"github.com/GoPolymarket/botfleet/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// OrderCanceller cancels a wallet's open orders when its worker stops.
type OrderCanceller interface {
	CancelAllOrders(ctx context.Context, address string) (int, error)
}

// WalletLookup resolves the wallet address owned by an account.
type WalletLookup interface {
	GetWalletAddress(account string) (string, error)
}

type workerRecord struct {
	name     string
	listener *telemetry.Listener
	commands *telemetry.CommandClient
}

// FleetOrchestrator creates worker containers and tracks the running ones with a telemetry listener each.
type FleetOrchestrator struct {
	paths     config.PathsConfig
	fleet     config.FleetConfig
	prefix    string
	timeout   time.Duration
	runtime   container.Runtime
	broker    telemetry.Broker
	wallets   WalletLookup
	canceller OrderCanceller

	mu      sync.RWMutex
	workers map[string]*workerRecord

	// listeners outlive the request that discovered them
	baseCtx    context.Context
	cancelBase context.CancelFunc

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
	log *slog.Logger
}

// NewFleetOrchestrator never fails on a missing container runtime; fleet operations report it instead.
func NewFleetOrchestrator(cfg *config.Config, runtime container.Runtime, broker telemetry.Broker, wallets WalletLookup, canceller OrderCanceller) *FleetOrchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &FleetOrchestrator{
		paths:      cfg.Paths,
		fleet:      cfg.Fleet,
		prefix:     cfg.Broker.TopicPrefix,
		timeout:    cfg.Broker.CommandTimeout,
		runtime:    runtime,
		broker:     broker,
		wallets:    wallets,
		canceller:  canceller,
		workers:    make(map[string]*workerRecord),
		baseCtx:    ctx,
		cancelBase: cancel,
		now:        time.Now,
		log:        logger.Component("orchestrator"),
	}
	if o.fleet.WorkerMarker == "" {
		o.fleet.WorkerMarker = "hummingbot"
	}
	if o.fleet.BrokerMarker == "" {
		o.fleet.BrokerMarker = "broker"
	}
	if o.fleet.ReconcileInterval <= 0 {
		o.fleet.ReconcileInterval = time.Second
	}

	if runtime == nil {
		o.log.Warn("⚠️ No container runtime configured, fleet operations disabled")
	} else {
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer pingCancel()
		if err := runtime.Ping(pingCtx); err != nil {
			o.log.Warn("⚠️ Container runtime unreachable, is Docker running?", "error", err)
		}
	}
	return o
}

func (o *FleetOrchestrator) isWorker(name string) bool {
	return strings.Contains(name, o.fleet.WorkerMarker) && !strings.Contains(name, o.fleet.BrokerMarker)
}

// WorkerName maps an account/instance name to its container name.
func (o *FleetOrchestrator) WorkerName(instance string) string {
	return o.fleet.WorkerMarker + "-" + instance
}

func (o *FleetOrchestrator) InstanceDir(name string) string {
	return filepath.Join(o.paths.Instances, name)
}

func (o *FleetOrchestrator) checkRuntime(ctx context.Context) error {
	if o.runtime == nil {
		return apperrors.Newf(apperrors.ErrContainerRuntimeUnavailable, "no container runtime configured")
	}
	if err := o.runtime.Ping(ctx); err != nil {
		return apperrors.New(apperrors.ErrContainerRuntimeUnavailable, "container runtime unreachable", err)
	}
	return nil
}

// ListActiveWorkers returns the names of running worker containers.
func (o *FleetOrchestrator) ListActiveWorkers(ctx context.Context) ([]string, error) {
	if err := o.checkRuntime(ctx); err != nil {
		return nil, err
	}
	running, err := o.runtime.ListRunning(ctx)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrContainerRuntimeUnavailable, "failed to list containers", err)
	}
	names := make([]string, 0, len(running))
	for _, c := range running {
		if o.isWorker(c.Name) {
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// CreateWorker materializes instances/<name> and launches the container.
// On any failure the instance directory is removed before returning.
func (o *FleetOrchestrator) CreateWorker(ctx context.Context, wc model.WorkerConfig) (string, error) {
	if err := credentials.ValidateName(wc.InstanceName); err != nil {
		return "", err
	}
	if err := credentials.ValidateName(wc.CredentialsProfile); err != nil {
		return "", err
	}
	if err := o.checkRuntime(ctx); err != nil {
		return "", err
	}

	name := o.WorkerName(wc.InstanceName)
	dir := o.InstanceDir(name)
	if fsutil.Exists(dir) {
		return "", apperrors.Newf(apperrors.ErrAlreadyExists, "instance %s already exists", name)
	}
	credsDir := filepath.Join(o.paths.Credentials, wc.CredentialsProfile)
	if !fsutil.Exists(credsDir) {
		return "", apperrors.Newf(apperrors.ErrNotFound, "credentials profile %s not found", wc.CredentialsProfile)
	}

	fail := func(msg string, err error) (string, error) {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			o.log.Error("failed to clean up instance directory", "dir", dir, "error", rmErr)
		}
		o.log.Error("worker creation failed", "instance", name, "error", err)
		return "", apperrors.New(apperrors.ErrContainerCreate, msg, err)
	}

	if err := o.prepareInstanceDir(dir, name, credsDir); err != nil {
		return fail("failed to prepare instance directory", err)
	}

	image := wc.Image
	if image == "" {
		image = o.fleet.Image
	}
	spec := container.Spec{
		Name:        name,
		Image:       image,
		Env:         o.workerEnv(),
		Binds:       o.workerBinds(name),
		NetworkMode: o.fleet.NetworkMode,
		LogMaxSize:  "10m",
		LogMaxFiles: "5",
	}
	if _, err := o.runtime.Create(ctx, spec); err != nil {
		return fail(fmt.Sprintf("failed to create container %s", name), err)
	}

	o.log.Info("worker created", "instance", name, "image", image, "market", wc.Market)
	return name, nil
}

func (o *FleetOrchestrator) prepareInstanceDir(dir, name, credsDir string) error {
	for _, sub := range []string{"data", "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return err
		}
	}
	confDir := filepath.Join(dir, "conf")
	if err := fsutil.CopyDir(credsDir, confDir); err != nil {
		return fmt.Errorf("copy credentials: %w", err)
	}
	for _, sub := range []string{"scripts", "controllers"} {
		src := filepath.Join(o.paths.Conf, sub)
		dst := filepath.Join(confDir, sub)
		if !fsutil.Exists(src) {
			o.log.Warn("bot configuration directory missing", "dir", src)
			if err := os.MkdirAll(dst, 0755); err != nil {
				return err
			}
			continue
		}
		if err := fsutil.CopyDir(src, dst); err != nil {
			return fmt.Errorf("copy %s: %w", sub, err)
		}
	}
	return setInstanceID(filepath.Join(confDir, "conf_client.yml"), name)
}

// setInstanceID rewrites instance_id in conf_client.yml, keeping the rest of the document as is.
func setInstanceID(path, instanceID string) error {
	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return err
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
	}

	if len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s is not a mapping", filepath.Base(path))
	}

	found := false
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "instance_id" {
			root.Content[i+1] = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: instanceID}
			found = true
			break
		}
	}
	if !found {
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "instance_id"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: instanceID},
		)
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, out, 0600)
}

func (o *FleetOrchestrator) workerEnv() []string {
	f := o.fleet
	return []string{
		"CONFIG_PASSWORD=" + f.ConfigPassword,
		"GATEWAY_CERT_PATH=" + f.GatewayCertPath,
		"GATEWAY_CERT_PASSPHRASE=" + f.GatewayCertPass,
		"GATEWAY_HOST=" + orDefault(f.GatewayHost, "gateway"),
		"GATEWAY_PORT=" + orDefault(f.GatewayPort, "15888"),
		"CERTS_PATH=" + orDefault(f.CertsPath, "/certs"),
	}
}

func (o *FleetOrchestrator) workerBinds(name string) []string {
	hostBots := strings.TrimRight(orDefault(o.paths.HostBotsPath, "./bots"), "/")
	hostCerts := orDefault(o.paths.HostCertsPath, "./certs")
	return []string{
		hostBots + "/instances/" + name + ":/conf:rw",
		hostCerts + ":/certs:ro",
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (o *FleetOrchestrator) record(id string) (*workerRecord, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	rec, ok := o.workers[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "bot %s not found", id)
	}
	return rec, nil
}

// StartWorker resumes telemetry and sends the start command.
func (o *FleetOrchestrator) StartWorker(ctx context.Context, id string, params map[string]any) (*model.CommandResponse, error) {
	rec, err := o.record(id)
	if err != nil {
		return nil, err
	}
	rec.listener.Start(o.baseCtx)
	resp, err := rec.commands.Start(ctx, params)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, apperrors.Newf(apperrors.ErrUpstream, "bot %s rejected start: %s", id, resp.Message)
	}
	return resp, nil
}

// StopWorker sends the stop command, then cancels the owning wallet's open orders.
func (o *FleetOrchestrator) StopWorker(ctx context.Context, id string) (*model.CommandResponse, error) {
	rec, err := o.record(id)
	if err != nil {
		return nil, err
	}
	rec.listener.Stop()
	resp, err := rec.commands.Stop(ctx)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, apperrors.Newf(apperrors.ErrUpstream, "bot %s rejected stop: %s", id, resp.Message)
	}

	if o.canceller == nil || o.wallets == nil {
		return resp, nil
	}
	account := strings.TrimPrefix(id, o.fleet.WorkerMarker+"-")
	address, err := o.wallets.GetWalletAddress(account)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrWalletNotFound) {
			o.log.Info("no wallet for stopped bot, nothing to cancel", "bot", id)
			return resp, nil
		}
		return resp, err
	}
	n, err := o.canceller.CancelAllOrders(ctx, address)
	if err != nil {
		return resp, apperrors.New(apperrors.ErrUpstream, fmt.Sprintf("bot %s stopped but order cancellation failed", id), err)
	}
	o.log.Info("bot stopped", "bot", id, "cancelled_orders", n)
	return resp, nil
}

func (o *FleetOrchestrator) ConfigureWorker(ctx context.Context, id string, params map[string]any) (*model.CommandResponse, error) {
	rec, err := o.record(id)
	if err != nil {
		return nil, err
	}
	return rec.commands.Config(ctx, params)
}

func (o *FleetOrchestrator) ImportStrategy(ctx context.Context, id, strategy string) (*model.CommandResponse, error) {
	rec, err := o.record(id)
	if err != nil {
		return nil, err
	}
	return rec.commands.ImportStrategy(ctx, strategy)
}

func (o *FleetOrchestrator) WorkerHistory(ctx context.Context, id string) ([]model.TradeLog, error) {
	rec, err := o.record(id)
	if err != nil {
		return nil, err
	}
	return rec.commands.History(ctx)
}

// RemoveWorker stops and removes the container, then deletes the instance directory,
// optionally archiving it first.
func (o *FleetOrchestrator) RemoveWorker(ctx context.Context, id string, keepArchive bool) (string, error) {
	// id names both a container and a directory under instances/
	if err := credentials.ValidateName(id); err != nil {
		return "", err
	}
	if !o.isWorker(id) {
		return "", apperrors.Newf(apperrors.ErrNotFound, "bot %s not found", id)
	}
	if err := o.checkRuntime(ctx); err != nil {
		return "", err
	}
	if err := o.runtime.Stop(ctx, id); err != nil {
		o.log.Warn("stop before remove failed", "bot", id, "error", err)
	}
	if err := o.runtime.Remove(ctx, id); err != nil {
		return "", apperrors.New(apperrors.ErrInternal, fmt.Sprintf("failed to remove container %s", id), err)
	}
	o.evict(id)

	dir := o.InstanceDir(id)
	if !fsutil.Exists(dir) {
		return "", nil
	}
	archivePath := ""
	if keepArchive {
		archivePath = filepath.Join(o.paths.Archive, archive.Name(id, o.now()))
		if err := archive.Compress(dir, archivePath); err != nil {
			return "", apperrors.New(apperrors.ErrInternal, "failed to archive instance", err)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return archivePath, apperrors.New(apperrors.ErrInternal, "failed to delete instance directory", err)
	}
	o.log.Info("worker removed", "bot", id, "archive", archivePath)
	return archivePath, nil
}

// Reconcile syncs the worker registry with the running container set.
func (o *FleetOrchestrator) Reconcile(ctx context.Context) error {
	if o.runtime == nil {
		return apperrors.Newf(apperrors.ErrContainerRuntimeUnavailable, "no container runtime configured")
	}
	running, err := o.runtime.ListRunning(ctx)
	if err != nil {
		return err
	}
	live := make(map[string]struct{}, len(running))
	for _, c := range running {
		if o.isWorker(c.Name) {
			live[c.Name] = struct{}{}
		}
	}

	var stale []*workerRecord
	o.mu.Lock()
	for name, rec := range o.workers {
		if _, ok := live[name]; !ok {
			stale = append(stale, rec)
			delete(o.workers, name)
		}
	}
	for name := range live {
		if _, ok := o.workers[name]; ok {
			continue
		}
		rec := &workerRecord{
			name:     name,
			listener: telemetry.NewListener(o.broker, o.prefix, name),
			commands: telemetry.NewCommandClient(o.broker, o.prefix, name, o.timeout),
		}
		rec.listener.Start(o.baseCtx)
		o.workers[name] = rec
		o.log.Info("worker discovered", "bot", name)
	}
	metrics.ActiveWorkers.Set(float64(len(o.workers)))
	o.mu.Unlock()

	for _, rec := range stale {
		rec.listener.Stop()
		o.log.Info("worker gone", "bot", rec.name)
	}
	return nil
}

func (o *FleetOrchestrator) evict(id string) {
	o.mu.Lock()
	rec, ok := o.workers[id]
	delete(o.workers, id)
	metrics.ActiveWorkers.Set(float64(len(o.workers)))
	o.mu.Unlock()
	if ok {
		rec.listener.Stop()
	}
}

// Start launches the reconciliation loop.
func (o *FleetOrchestrator) Start(ctx context.Context) {
	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.done = make(chan struct{})
	go o.runLoop(ctx, o.done)
}

func (o *FleetOrchestrator) Stop() {
	o.loopMu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (o *FleetOrchestrator) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(o.fleet.ReconcileInterval)
	defer ticker.Stop()
	for {
		if err := o.Reconcile(ctx); err != nil && ctx.Err() == nil {
			o.log.Debug("reconcile failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Close stops the loop and every listener.
func (o *FleetOrchestrator) Close() {
	o.Stop()
	o.mu.Lock()
	recs := make([]*workerRecord, 0, len(o.workers))
	for _, rec := range o.workers {
		recs = append(recs, rec)
	}
	o.workers = make(map[string]*workerRecord)
	o.mu.Unlock()
	for _, rec := range recs {
		rec.listener.Stop()
	}
	o.cancelBase()
}

func (o *FleetOrchestrator) GetBotStatus(id string) model.BotStatus {
	o.mu.RLock()
	rec, ok := o.workers[id]
	o.mu.RUnlock()
	if !ok {
		return telemetry.NotFoundStatus()
	}
	return telemetry.BotStatus(rec.listener)
}

func (o *FleetOrchestrator) GetAllBotsStatus() map[string]model.BotStatus {
	o.mu.RLock()
	recs := make([]*workerRecord, 0, len(o.workers))
	for _, rec := range o.workers {
		recs = append(recs, rec)
	}
	o.mu.RUnlock()

	out := make(map[string]model.BotStatus, len(recs))
	for _, rec := range recs {
		out[rec.name] = telemetry.BotStatus(rec.listener)
	}
	return out
}
