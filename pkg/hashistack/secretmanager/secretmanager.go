package secretmanager

import (
	"os"
	"time"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides a Vault client configured from VAULT_ADDR and VAULT_TOKEN.
// config.LoadConfig picks it up to override the billing secrets.
var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

func ProvideVault() (*vault.Client, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
		vault.WithRequestTimeout(10*time.Second),
	)
	if err != nil {
		return nil, err
	}

	zap.L().Info("vault client configured", zap.String("addr", os.Getenv("VAULT_ADDR")))
	return client, nil
}
