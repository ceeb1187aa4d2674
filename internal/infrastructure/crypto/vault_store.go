package crypto

import (
	"context"
	"fmt"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/veridia/tokencore/internal/config"
	"github.com/veridia/tokencore/internal/domain/models"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

// VaultKeyStore persists signing keys in a Vault KV v2 mount, one secret per
// key under <key_path>/<kid>. Vault's own access control and audit trail then
// cover the private material, which is why production deployments prefer this
// backend over the file store.
type VaultKeyStore struct {
	client  *vault.Client
	mount   string
	keyPath string
	log     logger.Logger
}

// NewVaultKeyStore connects to Vault with the configured address and token.
func NewVaultKeyStore(cfg config.VaultConfig, log logger.Logger) (*VaultKeyStore, error) {
	vaultCfg := vault.DefaultConfig()
	vaultCfg.Address = cfg.Address
	client, err := vault.NewClient(vaultCfg)
	if err != nil {
		return nil, apperrors.ErrKeyStoreUnavailable(err)
	}
	client.SetToken(cfg.Token)

	return &VaultKeyStore{
		client:  client,
		mount:   cfg.MountPath,
		keyPath: cfg.KeyPath,
		log:     log.WithComponent("vault_key_store"),
	}, nil
}

// Save writes the key as a single KV v2 secret.
func (s *VaultKeyStore) Save(ctx context.Context, key *models.SigningKey) error {
	data := map[string]interface{}{
		"kid":         key.KID,
		"algorithm":   key.Algorithm,
		"private_pem": string(key.PrivatePEM),
		"public_pem":  string(key.PublicPEM),
		"created_at":  key.CreatedAt.Format(time.RFC3339Nano),
		"active":      key.Active,
	}
	if !key.DeactivateAt.IsZero() {
		data["deactivate_at"] = key.DeactivateAt.Format(time.RFC3339Nano)
	}

	if _, err := s.client.KVv2(s.mount).Put(ctx, s.secretPath(key.KID), data); err != nil {
		return apperrors.ErrKeyStoreUnavailable(err)
	}
	s.log.Debug(ctx, "signing key saved", logger.String("kid", key.KID))
	return nil
}

// LoadAll lists the key path and fetches every secret under it.
func (s *VaultKeyStore) LoadAll(ctx context.Context) ([]*models.SigningKey, error) {
	listPath := fmt.Sprintf("%s/metadata/%s", s.mount, s.keyPath)
	secret, err := s.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		return nil, apperrors.ErrKeyStoreUnavailable(err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}
	rawKeys, ok := secret.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}

	keys := make([]*models.SigningKey, 0, len(rawKeys))
	for _, raw := range rawKeys {
		kid, ok := raw.(string)
		if !ok {
			continue
		}
		key, err := s.load(ctx, kid)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}

	s.log.Debug(ctx, "signing keys loaded", logger.Int("count", len(keys)))
	return keys, nil
}

// MarkInactive rewrites the secret with Active off.
func (s *VaultKeyStore) MarkInactive(ctx context.Context, kid string) error {
	key, err := s.load(ctx, kid)
	if err != nil {
		return err
	}
	if !key.Active {
		return nil
	}
	key.Active = false
	if err := s.Save(ctx, key); err != nil {
		return err
	}
	s.log.Info(ctx, "signing key marked inactive", logger.String("kid", kid))
	return nil
}

func (s *VaultKeyStore) load(ctx context.Context, kid string) (*models.SigningKey, error) {
	secret, err := s.client.KVv2(s.mount).Get(ctx, s.secretPath(kid))
	if err != nil {
		if err == vault.ErrSecretNotFound {
			return nil, apperrors.ErrNotFound("signing key %q not found", kid)
		}
		return nil, apperrors.ErrKeyStoreUnavailable(err)
	}

	key := &models.SigningKey{
		KID:        stringField(secret.Data, "kid"),
		Algorithm:  stringField(secret.Data, "algorithm"),
		PrivatePEM: []byte(stringField(secret.Data, "private_pem")),
		PublicPEM:  []byte(stringField(secret.Data, "public_pem")),
	}
	if v, ok := secret.Data["active"].(bool); ok {
		key.Active = v
	}
	if key.CreatedAt, err = timeField(secret.Data, "created_at"); err != nil {
		return nil, apperrors.ErrKeyStoreUnavailable(fmt.Errorf("key %s: %w", kid, err))
	}
	if _, present := secret.Data["deactivate_at"]; present {
		if key.DeactivateAt, err = timeField(secret.Data, "deactivate_at"); err != nil {
			return nil, apperrors.ErrKeyStoreUnavailable(fmt.Errorf("key %s: %w", kid, err))
		}
	}

	if err := parseKeyMaterial(key); err != nil {
		return nil, apperrors.ErrKeyStoreUnavailable(err)
	}
	return key, nil
}

func (s *VaultKeyStore) secretPath(kid string) string {
	return fmt.Sprintf("%s/%s", s.keyPath, kid)
}

func stringField(data map[string]interface{}, field string) string {
	v, _ := data[field].(string)
	return v
}

func timeField(data map[string]interface{}, field string) (time.Time, error) {
	raw, ok := data[field].(string)
	if !ok {
		return time.Time{}, fmt.Errorf("field %q missing or not a string", field)
	}
	return time.Parse(time.RFC3339Nano, raw)
}
