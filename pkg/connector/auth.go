package connector

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
)

const DefaultAPIKeyHeader = "X-API-Key"

var (
	ErrMissingCredential   = errors.New("connector credential is required for this auth type")
	ErrUnsupportedAuthType = errors.New("unsupported auth type")
)

// APIKeyHeader returns the header an api_key connector sends its key in.
func APIKeyHeader(cfg *models.ConnectorConfig) string {
	if name := cfg.AuthParams.Data["header_name"]; name != "" {
		return name
	}
	return DefaultAPIKeyHeader
}

// ApplyAuth returns a copy of headers with the connector's credential attached.
// oauth reuses the stored token as a bearer token; there is no token exchange.
func ApplyAuth(cfg *models.ConnectorConfig, credential string, headers map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}

	authType := cfg.AuthType
	if authType == "" {
		authType = models.AuthTypeNone
	}
	if authType != models.AuthTypeNone && credential == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredential, authType)
	}

	switch authType {
	case models.AuthTypeNone:
	case models.AuthTypeAPIKey:
		out[APIKeyHeader(cfg)] = credential
	case models.AuthTypeBearer, models.AuthTypeOAuth:
		out["Authorization"] = "Bearer " + credential
	case models.AuthTypeBasic:
		user, pass := basicPair(cfg, credential)
		out["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAuthType, authType)
	}
	return out, nil
}

// basicPair reads "user:pass" from the credential, or the username from the
// auth params with the whole credential as password.
func basicPair(cfg *models.ConnectorConfig, credential string) (string, string) {
	if user := cfg.AuthParams.Data["username"]; user != "" {
		return user, credential
	}
	user, pass, _ := strings.Cut(credential, ":")
	return user, pass
}
