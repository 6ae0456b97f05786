package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/GoPolymarket/botfleet/internal/config"
	"github.com/GoPolymarket/botfleet/internal/model"
	"github.com/GoPolymarket/botfleet/internal/pkg/apperrors"
	"github.com/GoPolymarket/botfleet/internal/pkg/fsutil"
	"github.com/GoPolymarket/botfleet/internal/pkg/logger"
	"gopkg.in/yaml.v3"
)

const (
	connectorsDir   = "connectors"
	accountInfoFile = "account_info.json"
	botConfigFile   = "bot_config.json"
	credentialExt   = ".yml"
)

// TemplateFiles are copied from the master account into every new account.
var TemplateFiles = []string{
	"conf_client.yml",
	"conf_fee_overrides.yml",
	"hummingbot_logs.yml",
	".password_verification",
}

// Store owns the credentials/<account>/ tree on disk.
// Concurrent writers to the same account must be serialized by the caller.
type Store struct {
	root   string
	master string
	log    *slog.Logger
}

func NewStore(cfg *config.Config) *Store {
	return &Store{
		root:   cfg.Paths.Credentials,
		master: cfg.Paths.MasterAccount,
		log:    logger.Component("credentials"),
	}
}

func (s *Store) Root() string {
	return s.root
}

func (s *Store) AccountDir(account string) string {
	return filepath.Join(s.root, account)
}

func (s *Store) Exists(account string) bool {
	if ValidateName(account) != nil {
		return false
	}
	info, err := os.Stat(s.AccountDir(account))
	return err == nil && info.IsDir()
}

// AddAccount creates credentials/<account>/connectors and seeds it from the master account.
func (s *Store) AddAccount(account string) error {
	if err := ValidateName(account); err != nil {
		return err
	}
	dir := s.AccountDir(account)
	if fsutil.Exists(dir) {
		return apperrors.Newf(apperrors.ErrAlreadyExists, "account %s already exists", account)
	}
	if err := os.MkdirAll(filepath.Join(dir, connectorsDir), 0700); err != nil {
		return apperrors.New(apperrors.ErrInternal, "failed to create account directory", err)
	}

	masterDir := s.AccountDir(s.master)
	for _, name := range TemplateFiles {
		src := filepath.Join(masterDir, name)
		if !fsutil.Exists(src) {
			s.log.Warn("template file missing in master account", "file", name, "account", account)
			continue
		}
		if err := fsutil.CopyFile(src, filepath.Join(dir, name)); err != nil {
			_ = os.RemoveAll(dir)
			return apperrors.New(apperrors.ErrInternal, fmt.Sprintf("failed to copy %s", name), err)
		}
	}
	s.log.Info("account added", "account", account)
	return nil
}

// DeleteAccount removes the whole account tree. Irreversible.
func (s *Store) DeleteAccount(account string) error {
	if err := ValidateName(account); err != nil {
		return err
	}
	if account == s.master {
		return apperrors.NewInvalidRequest("the master account cannot be deleted")
	}
	if !s.Exists(account) {
		return apperrors.Newf(apperrors.ErrNotFound, "account %s not found", account)
	}
	if err := os.RemoveAll(s.AccountDir(account)); err != nil {
		return apperrors.New(apperrors.ErrInternal, "failed to delete account", err)
	}
	s.log.Info("account deleted", "account", account)
	return nil
}

// ListAccounts returns every account directory except the master template.
func (s *Store) ListAccounts() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	accounts := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || e.Name() == s.master || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		accounts = append(accounts, e.Name())
	}
	sort.Strings(accounts)
	return accounts, nil
}

// ListCredentials returns the connector names that have a credential file.
func (s *Store) ListCredentials(account string) ([]string, error) {
	if !s.Exists(account) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "account %s not found", account)
	}
	entries, err := os.ReadDir(filepath.Join(s.AccountDir(account), connectorsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), credentialExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), credentialExt))
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) credentialPath(account, connector string) string {
	return filepath.Join(s.AccountDir(account), connectorsDir, connector+credentialExt)
}

func (s *Store) SaveConnectorKeys(account, connector string, keys map[string]string) error {
	if err := ValidateName(connector); err != nil {
		return err
	}
	if !s.Exists(account) {
		return apperrors.Newf(apperrors.ErrNotFound, "account %s not found", account)
	}
	doc := make(map[string]string, len(keys)+1)
	for k, v := range keys {
		doc[k] = v
	}
	doc["connector"] = connector
	data, err := yaml.Marshal(doc)
	if err != nil {
		return apperrors.New(apperrors.ErrInternal, "failed to encode connector keys", err)
	}
	if err := fsutil.WriteFileAtomic(s.credentialPath(account, connector), data, 0600); err != nil {
		return apperrors.New(apperrors.ErrInternal, "failed to write connector keys", err)
	}
	return nil
}

func (s *Store) LoadConnectorKeys(account, connector string) (map[string]string, error) {
	data, err := os.ReadFile(s.credentialPath(account, connector))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "no credentials for %s in account %s", connector, account)
		}
		return nil, err
	}
	keys := map[string]string{}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, apperrors.New(apperrors.ErrConnectorInit, fmt.Sprintf("invalid credential file for %s", connector), err)
	}
	delete(keys, "connector")
	return keys, nil
}

// DeleteCredential removes the connector credential file. Missing files are not an error.
func (s *Store) DeleteCredential(account, connector string) error {
	if err := ValidateName(connector); err != nil {
		return err
	}
	if !s.Exists(account) {
		return apperrors.Newf(apperrors.ErrNotFound, "account %s not found", account)
	}
	if err := os.Remove(s.credentialPath(account, connector)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return apperrors.New(apperrors.ErrInternal, "failed to delete credential", err)
	}
	return nil
}

func (s *Store) SaveAccountInfo(account string, info model.AccountInfo) error {
	return s.writeJSON(account, accountInfoFile, info)
}

func (s *Store) LoadAccountInfo(account string) (*model.AccountInfo, error) {
	var info model.AccountInfo
	if err := s.readJSON(account, accountInfoFile, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (s *Store) SaveBotConfig(account string, cfg model.BotConfig) error {
	return s.writeJSON(account, botConfigFile, cfg)
}

func (s *Store) LoadBotConfig(account string) (*model.BotConfig, error) {
	var cfg model.BotConfig
	if err := s.readJSON(account, botConfigFile, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.Newf(apperrors.ErrNotFound, "no configuration found for bot account %s", account)
		}
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) writeJSON(account, name string, v interface{}) error {
	if !s.Exists(account) {
		return apperrors.Newf(apperrors.ErrNotFound, "account %s not found", account)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(filepath.Join(s.AccountDir(account), name), data, 0600)
}

func (s *Store) readJSON(account, name string, v interface{}) error {
	if err := ValidateName(account); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(s.AccountDir(account), name))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// ValidateName rejects names that would escape the credentials tree.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return apperrors.NewInvalidRequest("name is required")
	case name == "." || name == "..":
		return apperrors.NewInvalidRequest("invalid name")
	case strings.ContainsAny(name, `/\`):
		return apperrors.NewInvalidRequest("name must not contain path separators")
	}
	return nil
}
