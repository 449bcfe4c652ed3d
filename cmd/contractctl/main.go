package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/compose-network/contract-pipeline/configs"
	"github.com/compose-network/contract-pipeline/internal/cli"
	"github.com/compose-network/contract-pipeline/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const appName = "contractctl"

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Compile, deploy and call Solidity contracts",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger.Initialize(slog.LevelInfo, logger.FormatText)

		if err := configs.SeedDefaults(viper.GetViper()); err != nil {
			return err
		}

		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		if execPath, err := os.Executable(); err == nil {
			execDir := filepath.Dir(execPath)
			viper.AddConfigPath(execDir)
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath("./configs")

		// a missing config file is fine, flags carry every setting
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); ok {
				slog.Debug("no config file found, will rely on flags and defaults")
			} else {
				const errMsg = "error reading config file"
				slog.With("err", err.Error()).Error(errMsg)
				return errors.Join(err, errors.New(errMsg))
			}
		} else {
			slog.With("config_file", viper.ConfigFileUsed()).Debug("config file loaded")
		}

		if err := viper.Unmarshal(&configs.Values); err != nil {
			const errMsg = "unable to decode application config"
			slog.With("err", err.Error()).Error(errMsg)
			return errors.Join(err, errors.New(errMsg))
		}

		logger.Initialize(logger.ParseLevel(configs.Values.Log.Level), configs.Values.Log.Format)
		slog.With("rpc_url", configs.Values.Network.RPCURL).
			With("compiler_backend", configs.Values.Compiler.Backend).
			Debug("configuration loaded")

		return nil
	},
}

func main() {
	if err := cli.Register(rootCmd); err != nil {
		panic(err.Error())
	}

	if err := rootCmd.Execute(); err != nil {
		slog.With("err", err.Error()).Error("failed to execute command")
		os.Exit(1)
	}
}
