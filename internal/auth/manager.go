// Package auth turns configured service-account credentials into a Drive
// service. Keys come from a file or the system keyring.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/config"
	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/zalando/go-keyring"
	"google.golang.org/api/drive/v3"
)

// DefaultKeyringService is used when credentials.keyringService is unset.
const DefaultKeyringService = "gdrvflow"

// Credential sources
const (
	SourceFile    = "file"
	SourceKeyring = "keyring"
)

// Manager resolves credentials for a profile.
type Manager struct {
	cfg            config.CredentialsConfig
	keyringService string
	logger         logging.Logger
}

// NewManager creates a new auth manager
func NewManager(cfg config.CredentialsConfig, logger logging.Logger) *Manager {
	service := cfg.KeyringService
	if service == "" {
		service = DefaultKeyringService
	}
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Manager{cfg: cfg, keyringService: service, logger: logger}
}

// LoadKey returns the service-account key JSON and where it came from. The
// configured file wins; otherwise the key stored in the keyring under profile.
func (m *Manager) LoadKey(profile string) ([]byte, string, error) {
	if m.cfg.File != "" {
		data, err := os.ReadFile(m.cfg.File)
		if err != nil {
			return nil, "", utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
				fmt.Sprintf("service account key file not readable: %s", m.cfg.File)).
				WithContext("setting", "credentials.file").
				Build())
		}
		return data, SourceFile, nil
	}

	secret, err := keyring.Get(m.keyringService, profile)
	if err != nil {
		return nil, "", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
			fmt.Sprintf("no credentials for profile %q: set credentials.file or run 'gdrvflow auth import'", profile)).
			WithContext("keyringService", m.keyringService).
			Build(), err)
	}
	return []byte(secret), SourceKeyring, nil
}

// ImportKey validates keyData and stores it in the keyring under profile.
func (m *Manager) ImportKey(profile string, keyData []byte) (*ServiceAccountKey, error) {
	key, err := ParseServiceAccountKey(keyData)
	if err != nil {
		return nil, err
	}
	if err := keyring.Set(m.keyringService, profile, string(keyData)); err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthInvalid,
			fmt.Sprintf("failed to store key in keyring: %v", err)).Build(), err)
	}
	return key, nil
}

// DeleteKey removes the keyring entry for profile.
func (m *Manager) DeleteKey(profile string) error {
	if err := keyring.Delete(m.keyringService, profile); err != nil && err != keyring.ErrNotFound {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeAuthInvalid,
			fmt.Sprintf("failed to delete key from keyring: %v", err)).Build(), err)
	}
	return nil
}

// ServiceOptions tunes the HTTP client behind the Drive service.
type ServiceOptions struct {
	Scopes []string
	// Transport wraps outgoing requests under the OAuth transport, e.g. a
	// logging.DebugTransport. Defaults to http.DefaultTransport.
	Transport http.RoundTripper
	Timeout   time.Duration
}

// DriveService loads the profile's key and builds an authorized Drive service.
func (m *Manager) DriveService(ctx context.Context, profile string, opts ServiceOptions) (*drive.Service, *ServiceAccountKey, error) {
	keyData, source, err := m.LoadKey(profile)
	if err != nil {
		return nil, nil, err
	}
	key, err := ParseServiceAccountKey(keyData)
	if err != nil {
		return nil, nil, err
	}
	scopes := opts.Scopes
	if len(scopes) == 0 {
		scopes = utils.ScopesAll
	}
	ts, err := TokenSource(ctx, keyData, scopes, m.cfg.ImpersonateUser)
	if err != nil {
		return nil, nil, err
	}

	m.logger.Debug("Loaded service account credentials",
		logging.F("source", source),
		logging.F("clientEmail", key.ClientEmail),
		logging.F("impersonate", m.cfg.ImpersonateUser),
	)
	svc, err := NewDriveService(ctx, ts, opts.Transport, opts.Timeout)
	if err != nil {
		return nil, nil, err
	}
	return svc, key, nil
}
