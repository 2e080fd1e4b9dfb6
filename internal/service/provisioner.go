package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pipelabs/tradegate/internal/bridge"
	"github.com/pipelabs/tradegate/internal/model"
	"github.com/pipelabs/tradegate/internal/pkg/apperrors"
	"github.com/pipelabs/tradegate/internal/pkg/logger"
	"github.com/pipelabs/tradegate/internal/pkg/metrics"
	"github.com/pipelabs/tradegate/internal/vault"
)

// Provisioner makes a stored credential usable on the execution service:
// ensure the client's account exists, then attach the exchange connector
// with the decrypted key material. Decrypted plaintext lives only inside the
// Provision call frame.
type Provisioner struct {
	bridge  *bridge.Client
	vault   *vault.Vault
	clients ClientRepo
	creds   CredentialRepo
}

func NewProvisioner(bridgeClient *bridge.Client, v *vault.Vault, clients ClientRepo, creds CredentialRepo) *Provisioner {
	return &Provisioner{bridge: bridgeClient, vault: v, clients: clients, creds: creds}
}

// Provision runs account-create (idempotent, 409 is success) then
// connector-add for one credential. Bridge failures are classified into the
// result; a vault failure is returned as an error because it signals key or
// ciphertext corruption, not a transient outage.
func (p *Provisioner) Provision(ctx context.Context, client *model.Client, cred *model.ExchangeCredential) (model.ProvisioningResult, error) {
	account := model.AccountSlug(client.Name)
	connector := model.NormalizeExchangeID(cred.Exchange)
	result := model.ProvisioningResult{AccountName: account, Connector: connector}

	apiKey, err := p.vault.Decrypt(cred.APIKeyEncrypted)
	if err != nil {
		return result, err
	}
	apiSecret, err := p.vault.Decrypt(cred.APISecretEncrypted)
	if err != nil {
		return result, err
	}
	passphrase, err := p.vault.Decrypt(cred.PassphraseEncrypted)
	if err != nil {
		return result, err
	}

	if err := p.bridge.CreateAccount(ctx, account); err != nil {
		return p.failed(result, "account creation", err), nil
	}
	if err := p.bridge.AddConnector(ctx, bridge.AddConnectorRequest{
		AccountName:   account,
		ConnectorName: connector,
		APIKey:        apiKey,
		APISecret:     apiSecret,
		Memo:          passphrase,
	}); err != nil {
		return p.failed(result, "connector setup", err), nil
	}

	result.Success = true
	result.Message = fmt.Sprintf("Connector %s ready on account %s", connector, account)
	metrics.ProvisioningTotal.WithLabelValues("success").Inc()
	logger.Info("credential provisioned", "client", client.ID, "connector", connector)
	return result, nil
}

// Reinitialize re-runs provisioning for every active credential of a client,
// concurrently. Partial success is normal: each credential reports its own
// result. Only vault errors abort the whole run.
func (p *Provisioner) Reinitialize(ctx context.Context, clientID string) ([]model.ProvisioningResult, error) {
	client, err := p.clients.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	creds, err := p.creds.ListActiveByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	results := make([]model.ProvisioningResult, len(creds))
	errs := make([]error, len(creds))
	var wg sync.WaitGroup
	for i, cred := range creds {
		wg.Add(1)
		go func(i int, cred *model.ExchangeCredential) {
			defer wg.Done()
			results[i], errs[i] = p.Provision(ctx, client, cred)
		}(i, cred)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (p *Provisioner) failed(result model.ProvisioningResult, stage string, err error) model.ProvisioningResult {
	kind := string(bridge.KindUnknown)
	var be *bridge.Error
	if errors.As(err, &be) {
		kind = string(be.Kind)
	}
	result.ErrorKind = kind
	result.Message = fmt.Sprintf("%s failed: %v", stage, err)
	metrics.ProvisioningTotal.WithLabelValues(kind).Inc()
	logger.Warn("provisioning failed", "connector", result.Connector, "stage", stage, "kind", kind, "error", err.Error())
	return result
}

// ProvisioningError converts a failed result into the matching PROVISIONING_* error,
// used by the reinitialize endpoint to surface a single-credential failure.
func ProvisioningError(result model.ProvisioningResult) *apperrors.AppError {
	switch result.ErrorKind {
	case string(bridge.KindTimeout):
		return apperrors.New(apperrors.ErrProvisionTimeout, result.Message, nil)
	case string(bridge.KindHTTP):
		return apperrors.New(apperrors.ErrProvisionHTTP, result.Message, nil)
	default:
		return apperrors.New(apperrors.ErrProvisionUnknown, result.Message, nil)
	}
}
