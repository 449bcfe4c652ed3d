package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	root := &cobra.Command{Use: "contractctl"}
	require.NoError(t, Register(root))

	names := make([]string, 0)
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"compile", "deploy", "call", "send", "fund", "balance", "accounts", "devchain", "walkthrough"}, names)

	devchain, _, err := root.Find([]string{"devchain", "up"})
	require.NoError(t, err)
	assert.Equal(t, "up", devchain.Name())

	require.NoError(t, root.PersistentFlags().Set("rpc-url", "http://127.0.0.1:9545"))
	require.NoError(t, root.PersistentFlags().Set("gas-margin-percent", "35"))
	assert.Equal(t, "http://127.0.0.1:9545", viper.GetString("network.rpc-url"))
	assert.Equal(t, 35, viper.GetInt("network.gas-margin-percent"))
	assert.True(t, viper.GetBool("compiler.optimizer"))
}
