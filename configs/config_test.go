package configs

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8545", cfg.Network.RPCURL)
	assert.Equal(t, 15*time.Second, cfg.Network.CallTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Network.ReceiptTimeout)
	assert.Equal(t, uint64(20), cfg.Network.GasMarginPercent)
	assert.Equal(t, CompilerBackendDocker, cfg.Compiler.Backend)
	assert.Equal(t, uint64(31337), cfg.DevChain.ChainID)
	assert.NotEmpty(t, cfg.Sender.SecondPrivateKey)

	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.Sender.RequireSender())
}

func TestConfig_Validate(t *testing.T) {
	cfg := MustDefaultConfig()
	cfg.Network.RPCURL = ""
	cfg.Compiler.Backend = "remote"
	cfg.Store.ArtifactsDir = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "network.rpc-url is required")
	assert.ErrorContains(t, err, "compiler.backend must be either 'local' or 'docker'")
	assert.ErrorContains(t, err, "store.artifacts-dir is required")
}

func TestCompiler_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Compiler
		wantErr string
	}{
		{name: "local", cfg: Compiler{Backend: CompilerBackendLocal, SolcPath: "solc"}},
		{name: "local without path", cfg: Compiler{Backend: CompilerBackendLocal}, wantErr: "compiler.solc-path"},
		{name: "docker without image", cfg: Compiler{Backend: CompilerBackendDocker}, wantErr: "compiler.image"},
		{name: "optimizer without runs", cfg: Compiler{Backend: CompilerBackendDocker, Image: "ethereum/solc:0.8.26", Optimizer: true}, wantErr: "compiler.runs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSender_RequireSender(t *testing.T) {
	assert.Error(t, (&Sender{}).RequireSender())
	assert.NoError(t, (&Sender{PrivateKey: "0x01"}).RequireSender())
}

func TestSeedDefaults(t *testing.T) {
	v := viper.New()
	require.NoError(t, SeedDefaults(v))

	assert.Equal(t, "http://127.0.0.1:8545", v.GetString("network.rpc-url"))
	assert.Equal(t, 2*time.Minute, v.GetDuration("network.receipt-timeout"))
	assert.Empty(t, v.GetString("sender.private-key"))

	v.Set("network.rpc-url", "http://10.0.0.1:8545")
	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	assert.Equal(t, "http://10.0.0.1:8545", cfg.Network.RPCURL)
	assert.Equal(t, "ethereum/solc:0.8.26", cfg.Compiler.Image)
}
