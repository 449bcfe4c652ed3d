package cli

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/compose-network/contract-pipeline/configs"
	"github.com/compose-network/contract-pipeline/internal/compiler"
	"github.com/compose-network/contract-pipeline/internal/deployer"
	"github.com/compose-network/contract-pipeline/internal/proxy"
	"github.com/compose-network/contract-pipeline/internal/store"
	"github.com/compose-network/contract-pipeline/internal/transactor"
	"github.com/compose-network/contract-pipeline/internal/walkthrough"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func compileCmd() *cobra.Command {
	var (
		sourcePath   string
		contractName string
	)

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a Solidity contract into the artifact store",
		Long:  "Compiles one contract with solc standard JSON and stores its bytecode and ABI. Without --source the bundled SimpleStorage contract is compiled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configs.Values
			unit := walkthrough.Source()
			if sourcePath != "" {
				content, err := os.ReadFile(sourcePath)
				if err != nil {
					return fmt.Errorf("failed to read source file: %w", err)
				}
				name := contractName
				if name == "" {
					name = strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
				}
				unit = compiler.SourceUnit{FileName: filepath.Base(sourcePath), Content: string(content), ContractName: name}
			}

			c, release, err := newCompiler(cfg.Compiler)
			if err != nil {
				return err
			}
			defer release()

			artifact, cached, err := walkthrough.Build(cmd.Context(), c, store.NewArtifacts(cfg.Store.ArtifactsDir), unit)
			if err != nil {
				return err
			}

			for _, w := range artifact.Warnings {
				cmd.PrintErrln(w.String())
			}
			cmd.Printf("%s compiled (cached: %t, bytecode: %d bytes)\n", artifact.ContractName, cached, len(artifact.Bytecode))
			for _, fn := range artifact.Functions {
				cmd.Printf("  %s  %s  0x%x\n", fn.Mutability, fn.Signature, fn.Selector)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourcePath, "source", "", "Solidity source file")
	cmd.Flags().StringVar(&contractName, "contract", "", "Contract to extract, defaults to the file name")
	return cmd
}

func deployCmd() *cobra.Command {
	var (
		value    string
		gasLimit uint64
	)

	cmd := &cobra.Command{
		Use:   "deploy <contract> [constructor args...]",
		Short: "Deploy a compiled contract and record its address",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := connect(cmd.Context(), configs.Values)
			if err != nil {
				return err
			}
			defer e.close()

			artifact, err := e.artifacts.Load(args[0])
			if err != nil {
				return err
			}
			ctorArgs, err := parseArgs("deploy "+args[0], artifact.ABI.Constructor.Inputs, args[1:])
			if err != nil {
				return err
			}
			wei, err := parseWei(value)
			if err != nil {
				return err
			}
			from, err := e.sender()
			if err != nil {
				return err
			}

			deployment, err := e.deployer().DeployWithOptions(cmd.Context(), artifact, from, deployer.Options{Value: wei, GasLimit: gasLimit}, ctorArgs...)
			if deployment != nil {
				printResult(cmd, deployment.Result)
				cmd.Printf("address: %s\n", deployment.Ref.Address.Hex())
			}
			return err
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Wei sent to a payable constructor")
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", 0, "Gas limit, skips estimation when set")
	return cmd
}

func callCmd() *cobra.Command {
	var block int64

	cmd := &cobra.Command{
		Use:   "call <contract> <function> [args...]",
		Short: "Query a view or pure function of a deployed contract",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, configs.Values)
			if err != nil {
				return err
			}
			defer e.close()

			contract, err := e.contract(ctx, args[0])
			if err != nil {
				return err
			}
			reader, err := contract.Reader(args[1])
			if err != nil {
				return err
			}
			callArgs, err := parseArgs(args[1], reader.Method().Inputs, args[2:])
			if err != nil {
				return err
			}

			opts := proxy.CallOpts{}
			if block >= 0 {
				opts.BlockNumber = big.NewInt(block)
			}
			values, err := reader.Call(ctx, opts, callArgs...)
			if err != nil {
				return err
			}
			for _, v := range values {
				cmd.Println(formatValue(v))
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&block, "block", -1, "Block number to read at, latest when negative")
	return cmd
}

func sendCmd() *cobra.Command {
	var (
		value    string
		gasLimit uint64
	)

	cmd := &cobra.Command{
		Use:   "send <contract> <function> [args...]",
		Short: "Send a transaction calling a state changing function",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, configs.Values)
			if err != nil {
				return err
			}
			defer e.close()

			contract, err := e.contract(ctx, args[0])
			if err != nil {
				return err
			}
			writer, err := contract.Writer(args[1])
			if err != nil {
				return err
			}
			txArgs, err := parseArgs(args[1], writer.Method().Inputs, args[2:])
			if err != nil {
				return err
			}
			wei, err := parseWei(value)
			if err != nil {
				return err
			}
			from, err := e.sender()
			if err != nil {
				return err
			}

			result, err := writer.Transact(ctx, from, proxy.TransactOpts{Value: wei, GasLimit: gasLimit}, txArgs...)
			if err != nil {
				return err
			}
			printResult(cmd, result)

			events, err := contract.DecodeLogs(result.Receipt)
			if err != nil {
				return err
			}
			for _, event := range events {
				fields := make([]string, 0, len(event.Fields))
				for name, v := range event.Fields {
					fields = append(fields, name+"="+formatValue(v))
				}
				cmd.Printf("event %s(%s)\n", event.Name, strings.Join(fields, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "Wei attached to a payable function")
	cmd.Flags().Uint64Var(&gasLimit, "gas-limit", 0, "Gas limit, skips estimation when set")
	return cmd
}

func fundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fund <contract> <wei>",
		Short: "Send plain value to a deployed contract",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, configs.Values)
			if err != nil {
				return err
			}
			defer e.close()

			contract, err := e.contract(ctx, args[0])
			if err != nil {
				return err
			}
			wei, err := parseWei(args[1])
			if err != nil {
				return err
			}
			from, err := e.sender()
			if err != nil {
				return err
			}

			result, err := contract.Fund(ctx, from, wei)
			if err != nil {
				return err
			}
			printResult(cmd, result)
			return nil
		},
	}
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance <address|contract>",
		Short: "Print the balance of an account or a recorded contract in wei",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, configs.Values)
			if err != nil {
				return err
			}
			defer e.close()

			var account common.Address
			if common.IsHexAddress(args[0]) {
				account = common.HexToAddress(args[0])
			} else {
				record, err := e.deployments.Load(args[0])
				if err != nil {
					return err
				}
				account = record.Address
			}

			balance, err := e.conn.Balance(ctx, account, nil)
			if err != nil {
				return err
			}
			cmd.Println(balance.String())
			return nil
		},
	}
}

func accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts the node manages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, configs.Values)
			if err != nil {
				return err
			}
			defer e.close()

			accounts, err := e.conn.Accounts(ctx)
			if err != nil {
				return err
			}
			for _, account := range accounts {
				balance, err := e.conn.Balance(ctx, account, nil)
				if err != nil {
					return err
				}
				cmd.Printf("%s  %s\n", account.Hex(), balance)
			}
			return nil
		},
	}
}

func walkthroughCmd() *cobra.Command {
	var fund string

	cmd := &cobra.Command{
		Use:   "walkthrough",
		Short: "Compile, deploy and exercise the bundled SimpleStorage contract",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := connect(ctx, configs.Values)
			if err != nil {
				return err
			}
			defer e.close()

			c, release, err := newCompiler(e.cfg.Compiler)
			if err != nil {
				return err
			}
			defer release()

			owner, err := e.sender()
			if err != nil {
				return err
			}
			other, err := e.secondSender()
			if err != nil {
				return err
			}
			wei, err := parseWei(fund)
			if err != nil {
				return err
			}

			report, err := walkthrough.Run(ctx, walkthrough.Pipeline{
				Compiler:   c,
				Artifacts:  e.artifacts,
				Deployer:   e.deployer(),
				Transactor: e.transactor,
			}, walkthrough.Accounts{Owner: owner, Other: other}, walkthrough.Options{FundValue: wei})
			if err != nil {
				return err
			}

			cmd.Printf("address:          %s\n", report.Address.Hex())
			cmd.Printf("initial value:    %s\n", report.InitialValue)
			cmd.Printf("updated value:    %s\n", report.UpdatedValue)
			cmd.Printf("contract balance: %s\n", report.ContractBalance)
			if report.WithdrawRejection != nil {
				cmd.Printf("foreign withdraw: %v\n", report.WithdrawRejection)
			}
			cmd.Printf("final balance:    %s\n", report.FinalBalance)
			return nil
		},
	}

	cmd.Flags().StringVar(&fund, "fund", "1000000000000000000", "Wei sent to the contract before withdrawing")
	return cmd
}

func printResult(cmd *cobra.Command, result *transactor.Result) {
	if result == nil {
		return
	}
	cmd.Printf("tx: %s block: %s gas estimated: %d limit: %d used: %d\n",
		result.TxHash.Hex(), result.Receipt.BlockNumber, result.GasEstimated, result.GasLimit, result.GasUsed)
}
