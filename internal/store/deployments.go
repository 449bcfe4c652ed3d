package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/compose-network/contract-pipeline/internal/failures"
	"github.com/compose-network/contract-pipeline/internal/infra/filesystem"
	fsjson "github.com/compose-network/contract-pipeline/internal/infra/filesystem/json"
	"github.com/compose-network/contract-pipeline/internal/logger"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type (
	// DeploymentRecord is what a later run needs to reach a deployed contract.
	DeploymentRecord struct {
		ContractName string             `yaml:"-"`
		Address      common.Address     `yaml:"address"`
		ChainID      uint64             `yaml:"chain-id"`
		TxHash       common.Hash        `yaml:"tx-hash"`
		BlockNumber  uint64             `yaml:"block-number"`
		Deployer     common.Address     `yaml:"deployer"`
		GasEstimated uint64             `yaml:"gas-estimated"`
		GasUsed      uint64             `yaml:"gas-used"`
		DeployedAt   time.Time          `yaml:"deployed-at"`
		ABI          SingleQuotedString `yaml:"abi"`
	}

	deploymentsFile struct {
		Deployments map[string]DeploymentRecord `yaml:"deployments"`
	}

	// SingleQuotedString keeps JSON readable inside YAML
	SingleQuotedString string

	// Deployments is a YAML file keyed by contract name.
	Deployments struct {
		path   string
		reader filesystem.Reader
		writer filesystem.Writer
		logger *slog.Logger
	}
)

func (s SingleQuotedString) MarshalYAML() (any, error) {
	node := &yaml.Node{
		Kind:  yaml.ScalarNode,
		Style: yaml.SingleQuotedStyle,
		Value: string(s),
	}
	return node, nil
}

// CompactABI renders a raw ABI on a single line for the record.
func CompactABI(raw []byte) SingleQuotedString {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return SingleQuotedString(raw)
	}
	return SingleQuotedString(buf.String())
}

func NewDeployments(path string) *Deployments {
	return &Deployments{
		path:   path,
		reader: fsjson.NewReader(),
		writer: fsjson.NewWriter(),
		logger: logger.Named("deployment_store"),
	}
}

// Save records a deployment, replacing any earlier record for the same contract name.
func (d *Deployments) Save(record DeploymentRecord) error {
	file, err := d.read()
	if err != nil {
		return err
	}
	file.Deployments[record.ContractName] = record

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("could not marshal deployments. Err: '%w'", err)
	}

	if err := d.writer.WriteBytes(d.path, data); err != nil {
		return fmt.Errorf("could not write deployments file. Err: '%w'", err)
	}

	d.logger.
		With("contract", record.ContractName).
		With("address", record.Address.Hex()).
		With("path", d.path).
		Info("deployment recorded")

	return nil
}

// Load returns the record of name.
func (d *Deployments) Load(name string) (DeploymentRecord, error) {
	file, err := d.read()
	if err != nil {
		return DeploymentRecord{}, err
	}

	record, ok := file.Deployments[name]
	if !ok {
		return DeploymentRecord{}, failures.New(failures.KindArtifactNotFound, "load_deployment", fmt.Sprintf("no deployment of %s recorded in %s", name, d.path))
	}
	record.ContractName = name
	return record, nil
}

func (d *Deployments) read() (*deploymentsFile, error) {
	file := &deploymentsFile{Deployments: map[string]DeploymentRecord{}}

	data, err := d.reader.ReadBytes(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return file, nil
		}
		return nil, fmt.Errorf("could not read deployments file. Err: '%w'", err)
	}

	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("could not parse deployments file %s. Err: '%w'", d.path, err)
	}
	if file.Deployments == nil {
		file.Deployments = map[string]DeploymentRecord{}
	}
	return file, nil
}
