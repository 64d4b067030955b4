package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ServiceAccountKey represents the JSON structure of a service account key file
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri"`
}

// ParseServiceAccountKey checks that keyData is a usable service account key.
func ParseServiceAccountKey(keyData []byte) (*ServiceAccountKey, error) {
	var key ServiceAccountKey
	if err := json.Unmarshal(keyData, &key); err != nil {
		return nil, invalidKey(fmt.Sprintf("failed to parse service account key: %v", err))
	}
	if key.Type != "service_account" {
		return nil, invalidKey(fmt.Sprintf("invalid service account key type: %s", key.Type))
	}
	if key.ClientEmail == "" {
		return nil, invalidKey("missing client_email in service account key")
	}
	if key.PrivateKey == "" {
		return nil, invalidKey("missing private_key in service account key")
	}
	return &key, nil
}

// TokenSource builds a token source for keyData, impersonating subject when set.
func TokenSource(ctx context.Context, keyData []byte, scopes []string, subject string) (oauth2.TokenSource, error) {
	if len(scopes) == 0 {
		return nil, invalidKey("at least one scope required")
	}
	if subject != "" && !strings.Contains(subject, "@") {
		return nil, utils.ConfigError("credentials.impersonateUser", "impersonate user must be an email address")
	}

	creds, err := google.CredentialsFromJSONWithParams(ctx, keyData, google.CredentialsParams{
		Scopes:  scopes,
		Subject: subject,
	})
	if err != nil {
		return nil, invalidKey(fmt.Sprintf("failed to load service account key: %v", err))
	}
	return creds.TokenSource, nil
}

func invalidKey(msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthInvalid, msg).Build())
}
