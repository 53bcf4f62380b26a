package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/hmrc/bintray-backup-restore/internal/types"
	"github.com/hmrc/bintray-backup-restore/internal/utils"
)

const (
	serviceName = "bintray-backup-restore"

	// DefaultProfile is used when no profile is named
	DefaultProfile = "default"

	EnvUsername = "BINTRAY_USERNAME"
	EnvToken    = "BINTRAY_TOKEN"
)

// Manager resolves and stores Bintray credentials
type Manager struct {
	configDir      string
	useKeyring     bool
	storage        StorageBackend
	storageWarning string
	getenv         func(string) string
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	ForceEncryptedFile bool // skip the keyring probe
}

// NewManager creates a new auth manager
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

// NewManagerWithOptions creates a new auth manager, preferring the system keyring
func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{configDir: configDir, getenv: os.Getenv}

	if !opts.ForceEncryptedFile && checkKeyringAvailable() {
		mgr.storage = NewKeyringStorage(serviceName)
		mgr.useKeyring = true
		return mgr
	}

	storage, err := NewEncryptedFileStorage(configDir)
	if err != nil {
		mgr.storageWarning = fmt.Sprintf("WARNING: credential storage unavailable (%v). Use %s and %s.", err, EnvUsername, EnvToken)
		return mgr
	}
	mgr.storage = storage
	if !opts.ForceEncryptedFile {
		mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
	}
	return mgr
}

// checkKeyringAvailable tests if system keyring is available
func checkKeyringAvailable() bool {
	testKey := serviceName + "-probe"
	if err := keyring.Set(serviceName, testKey, "probe"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey)
	return true
}

// SaveCredentials stores creds under profile
func (m *Manager) SaveCredentials(profile string, creds types.Credentials) error {
	if !creds.Complete() {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			"both username and token are required").Build())
	}
	if m.storage == nil {
		return errors.New(m.storageWarning)
	}
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	if err := m.storage.Save(profile, data); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// LoadCredentials returns the credentials stored under profile
func (m *Manager) LoadCredentials(profile string) (types.Credentials, error) {
	var creds types.Credentials
	if m.storage == nil {
		return creds, ErrNotFound
	}
	data, err := m.storage.Load(profile)
	if err != nil {
		return creds, err
	}
	if err := json.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("stored credentials are corrupt: %w", err)
	}
	return creds, nil
}

// DeleteCredentials removes the credentials stored under profile
func (m *Manager) DeleteCredentials(profile string) error {
	if m.storage == nil {
		return ErrNotFound
	}
	return m.storage.Delete(profile)
}

// ResolveCredentials picks credentials with precedence flags > env > stored.
// Username and token are resolved together; a partial set at one level falls through.
func (m *Manager) ResolveCredentials(profile string, flags types.Credentials) (types.Credentials, types.CredentialSource, error) {
	if flags.Complete() {
		return flags, types.CredentialSourceFlags, nil
	}

	env := types.Credentials{Username: m.getenv(EnvUsername), Token: m.getenv(EnvToken)}
	if flags.Username != "" {
		env.Username = flags.Username
	}
	if flags.Token != "" {
		env.Token = flags.Token
	}
	if env.Complete() {
		return env, types.CredentialSourceEnv, nil
	}

	stored, err := m.LoadCredentials(profile)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return types.Credentials{}, types.CredentialSourceMissing, err
	}
	if err == nil && stored.Complete() {
		return stored, types.CredentialSourceStored, nil
	}

	return types.Credentials{}, types.CredentialSourceMissing, utils.NewAppError(
		utils.NewCLIError(utils.ErrCodeAuthRequired, "no Bintray credentials found").
			WithContext("suggestedAction", fmt.Sprintf("set %s and %s or run 'bintray-backup-restore auth login'", EnvUsername, EnvToken)).
			Build())
}

// UseKeyring returns whether the manager is using the system keyring
func (m *Manager) UseKeyring() bool {
	return m.useKeyring
}

// ConfigDir returns the directory used for file based storage
func (m *Manager) ConfigDir() string {
	return m.configDir
}

// GetStorageBackend returns the active backend name
func (m *Manager) GetStorageBackend() string {
	if m.storage == nil {
		return "none"
	}
	return m.storage.Name()
}

// GetStorageWarning returns a notice about degraded storage, if any
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
