package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/pkg/logger"
	"github.com/pipelabs/tradegate/internal/vault"
)

// CreateCredentialInput is the plaintext submission for one exchange key
// pair. It is encrypted immediately and never stored or logged as-is.
type CreateCredentialInput struct {
	Exchange   string `json:"exchange" binding:"required"`
	Label      string `json:"label"`
	APIKey     string `json:"api_key" binding:"required"`
	APISecret  string `json:"api_secret" binding:"required"`
	Passphrase string `json:"passphrase"`
	IsTestnet  bool   `json:"is_testnet"`
}

// CredentialView is the only shape credentials leave the service in: masked
// key preview, presence flags, no secret material.
type CredentialView struct {
	ID            string    `json:"id"`
	Exchange      string    `json:"exchange"`
	Label         string    `json:"label,omitempty"`
	APIKeyPreview string    `json:"api_key_preview"`
	HasPassphrase bool      `json:"has_passphrase"`
	IsActive      bool      `json:"is_active"`
	IsTestnet     bool      `json:"is_testnet"`
	CreatedAt     time.Time `json:"created_at"`
}

// CredentialService owns the lifecycle of exchange credentials: create
// (encrypt, commit, then best-effort provision), list with masked previews,
// deactivate, delete, reinitialize.
type CredentialService struct {
	clients ClientRepo
	creds   CredentialRepo
	vault   *vault.Vault
	prov    *Provisioner
}

func NewCredentialService(clients ClientRepo, creds CredentialRepo, v *vault.Vault, prov *Provisioner) *CredentialService {
	return &CredentialService{clients: clients, creds: creds, vault: v, prov: prov}
}

// Create encrypts and commits the credential, then attempts provisioning.
// The commit always happens first: a provisioning failure is returned as a
// warning result beside the created record, never as a creation failure,
// since provisioning can be re-run at any time via Reinitialize.
func (s *CredentialService) Create(ctx context.Context, clientID string, in CreateCredentialInput) (*CredentialView, *model.ProvisioningResult, error) {
	if in.Exchange == "" || in.APIKey == "" || in.APISecret == "" {
		return nil, nil, apperrors.NewInvalidRequest("exchange, api_key and api_secret are required")
	}

	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}

	// The execution-service account name derives from the display name. Two
	// clients colliding on the slug would share an account, so the collision
	// is rejected before any secret is stored.
	slug := model.AccountSlug(client.Name)
	taken, err := s.clients.SlugTaken(ctx, slug, client.ID)
	if err != nil {
		return nil, nil, err
	}
	if taken {
		return nil, nil, apperrors.New(apperrors.ErrSlugConflict,
			fmt.Sprintf("account name %q is already derived by another client", slug), nil)
	}

	keyEnc, err := s.vault.Encrypt(in.APIKey)
	if err != nil {
		return nil, nil, apperrors.Wrap(err)
	}
	secretEnc, err := s.vault.Encrypt(in.APISecret)
	if err != nil {
		return nil, nil, apperrors.Wrap(err)
	}
	passEnc, err := s.vault.Encrypt(in.Passphrase)
	if err != nil {
		return nil, nil, apperrors.Wrap(err)
	}

	now := time.Now().UTC()
	cred := &model.ExchangeCredential{
		ID:                  uuid.NewString(),
		ClientID:            clientID,
		Exchange:            model.NormalizeExchangeID(in.Exchange),
		Label:               in.Label,
		APIKeyEncrypted:     keyEnc,
		APISecretEncrypted:  secretEnc,
		PassphraseEncrypted: passEnc,
		IsActive:            true,
		IsTestnet:           in.IsTestnet,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.creds.Insert(ctx, cred); err != nil {
		return nil, nil, err
	}
	logger.Info("credential created", "client", clientID, "exchange", cred.Exchange, "credential", cred.ID)

	view := s.view(cred, in.APIKey)

	result, err := s.prov.Provision(ctx, client, cred)
	if err != nil {
		// Vault failure right after a successful encrypt means the vault key
		// changed mid-request; surface it, the credential row stays.
		return &view, nil, err
	}
	if result.Success {
		return &view, nil, nil
	}
	return &view, &result, nil
}

// List returns masked views of every credential the client owns. Decryption
// failures abort the listing: masking corrupted ciphertext would hide a
// vault-key problem behind a plausible preview.
func (s *CredentialService) List(ctx context.Context, clientID string) ([]CredentialView, error) {
	creds, err := s.creds.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	views := make([]CredentialView, 0, len(creds))
	for _, cred := range creds {
		apiKey, err := s.vault.Decrypt(cred.APIKeyEncrypted)
		if err != nil {
			return nil, err
		}
		views = append(views, s.view(cred, apiKey))
	}
	return views, nil
}

func (s *CredentialService) Deactivate(ctx context.Context, clientID, credentialID string) error {
	return s.creds.Deactivate(ctx, clientID, credentialID)
}

func (s *CredentialService) Delete(ctx context.Context, clientID, credentialID string) error {
	return s.creds.Delete(ctx, clientID, credentialID)
}

// Reinitialize re-provisions every active credential of the client.
func (s *CredentialService) Reinitialize(ctx context.Context, clientID string) ([]model.ProvisioningResult, error) {
	return s.prov.Reinitialize(ctx, clientID)
}

func (s *CredentialService) view(cred *model.ExchangeCredential, apiKey string) CredentialView {
	return CredentialView{
		ID:            cred.ID,
		Exchange:      cred.Exchange,
		Label:         cred.Label,
		APIKeyPreview: maskKey(apiKey),
		HasPassphrase: cred.PassphraseEncrypted != "",
		IsActive:      cred.IsActive,
		IsTestnet:     cred.IsTestnet,
		CreatedAt:     cred.CreatedAt,
	}
}

// maskKey keeps the first six and last four characters, enough to recognize
// a key without disclosing it.
func maskKey(key string) string {
	if len(key) <= 10 {
		return "***"
	}
	return key[:6] + "..." + key[len(key)-4:]
}
