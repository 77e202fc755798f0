package auth

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"go.goms.io/arc/ArcFleetAudit/pkg/config"
)

// AuthProvider is a simple factory for Azure credentials
type AuthProvider struct{}

// NewAuthProvider creates a new authentication provider
func NewAuthProvider() *AuthProvider {
	return &AuthProvider{}
}

// UserCredential returns credential based on config (service principal or CLI fallback)
func (a *AuthProvider) UserCredential(cfg *config.Config) (azcore.TokenCredential, error) {
	if cfg.IsSPConfigured() {
		return a.serviceCredential(cfg)
	}
	return a.cliCredential(cfg)
}

// serviceCredential creates service principal credential from config
func (a *AuthProvider) serviceCredential(cfg *config.Config) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewClientSecretCredential(
		cfg.Azure.ServicePrincipal.TenantID,
		cfg.Azure.ServicePrincipal.ClientID,
		cfg.Azure.ServicePrincipal.ClientSecret,
		&azidentity.ClientSecretCredentialOptions{
			ClientOptions: azcore.ClientOptions{Cloud: cfg.CloudConfiguration()},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service principal credential: %w", err)
	}
	return cred, nil
}

// cliCredential creates Azure CLI credential
func (a *AuthProvider) cliCredential(cfg *config.Config) (azcore.TokenCredential, error) {
	cred, err := azidentity.NewAzureCLICredential(&azidentity.AzureCLICredentialOptions{
		TenantID: cfg.Azure.TenantID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create CLI credential: %w", err)
	}
	return cred, nil
}

// ResourceManagerScope returns the token scope for the cloud's Resource Manager endpoint
func ResourceManagerScope(c cloud.Configuration) string {
	audience := "https://management.core.windows.net/"
	if svc, ok := c.Services[cloud.ResourceManager]; ok && svc.Audience != "" {
		audience = svc.Audience
	}
	return strings.TrimSuffix(audience, "/") + "/.default"
}

// VerifyCredential acquires a Resource Manager token so that authentication problems fail
// the run up front instead of surfacing as per-machine errors
func (a *AuthProvider) VerifyCredential(ctx context.Context, cred azcore.TokenCredential, cfg *config.Config) error {
	if _, err := a.GetAccessTokenForResource(ctx, cred, ResourceManagerScope(cfg.CloudConfiguration())); err != nil {
		return fmt.Errorf("cannot establish an authenticated Azure session: %w", err)
	}
	return nil
}

// GetAccessTokenForResource retrieves access token for given credential and resource
func (a *AuthProvider) GetAccessTokenForResource(ctx context.Context, cred azcore.TokenCredential, resource string) (string, error) {
	tokenRequestOptions := policy.TokenRequestOptions{
		Scopes: []string{resource},
	}

	accessToken, err := cred.GetToken(ctx, tokenRequestOptions)
	if err != nil {
		return "", fmt.Errorf("failed to get access token: %w", err)
	}

	return accessToken.Token, nil
}

// CheckCLIAuthStatus checks if user is logged in to Azure CLI and if the token is valid
func (a *AuthProvider) CheckCLIAuthStatus(ctx context.Context) error {
	// Try to get account information - this will fail if not logged in or token expired
	cmd := exec.CommandContext(ctx, "az", "account", "show", "--output", "json")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("azure CLI authentication check failed: %w", err)
	}

	// Try to get an access token to verify it's not expired
	cmd = exec.CommandContext(ctx, "az", "account", "get-access-token", "--output", "json")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("azure CLI token validation failed: %w", err)
	}

	return nil
}

// InteractiveAzLogin performs interactive Azure CLI login, optionally scoped to a tenant
func (a *AuthProvider) InteractiveAzLogin(ctx context.Context, tenantID string) error {
	args := []string{"login"}
	if tenantID != "" {
		args = append(args, "--tenant", tenantID)
	}

	cmd := exec.CommandContext(ctx, "az", args...)

	// Connect stdin, stdout, stderr to allow interactive prompts
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("interactive Azure CLI login failed: %w", err)
	}

	return nil
}

// EnsureAuthenticated checks if user is authenticated and prompts for login if needed
func (a *AuthProvider) EnsureAuthenticated(ctx context.Context, tenantID string) error {
	if err := a.CheckCLIAuthStatus(ctx); err == nil {
		return nil // Already authenticated and token is valid
	}

	return a.InteractiveAzLogin(ctx, tenantID)
}
