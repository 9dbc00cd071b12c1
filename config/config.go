package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Structs

// Config holds all information parsed from the
// supplied config file.
type Config struct {
	RootCertLoc string
	Replicas    map[string]Replica
}

// Replica describes one store replica's listen
// addresses, TLS material and data root.
type Replica struct {
	Name                string
	PublicFrontendAddr  string
	ListenFrontendAddr  string
	PublicSyncAddr      string
	ListenSyncAddr      string
	PrometheusAddr      string
	CertLoc             string
	KeyLoc              string
	DataRoot            string
	SyncRetryMS         int
	SyncTimeoutMS       int
	Peers               map[string]string
}

// Functions

// LoadConfig takes in the path to the main config
// file in TOML syntax and places the values from
// the file in the corresponding struct.
func LoadConfig(configFile string) (*Config, error) {

	conf := new(Config)

	// Parse values from TOML file into struct.
	_, err := toml.DecodeFile(configFile, conf)
	if err != nil {
		return nil, fmt.Errorf("config.LoadConfig: failed to read in TOML config file at %q: %v", configFile, err)
	}

	// Retrieve absolute path of the repository root.
	// Start with current directory.
	absRootPath, err := filepath.Abs("./")
	if err != nil {
		return nil, fmt.Errorf("config.LoadConfig: could not get absolute path of current directory: %v", err)
	}

	// Check if path ends in a directory name matching
	// this store's module, otherwise use one level above.
	if !strings.HasSuffix(absRootPath, "Dotted-Version-Vectors") {

		absRootPath, err = filepath.Abs("../")
		if err != nil {
			return nil, fmt.Errorf("config.LoadConfig: could not get absolute path of root directory: %v", err)
		}
	}

	// Prefix each relative path in config with the
	// just obtained absolute path.

	if !filepath.IsAbs(conf.RootCertLoc) {
		conf.RootCertLoc = filepath.Join(absRootPath, conf.RootCertLoc)
	}

	for name, replica := range conf.Replicas {

		if !filepath.IsAbs(replica.CertLoc) {
			replica.CertLoc = filepath.Join(absRootPath, replica.CertLoc)
		}

		if !filepath.IsAbs(replica.KeyLoc) {
			replica.KeyLoc = filepath.Join(absRootPath, replica.KeyLoc)
		}

		if !filepath.IsAbs(replica.DataRoot) {
			replica.DataRoot = filepath.Join(absRootPath, replica.DataRoot)
		}

		if replica.SyncRetryMS == 0 {
			replica.SyncRetryMS = 20
		}

		if replica.SyncTimeoutMS == 0 {
			replica.SyncTimeoutMS = 500
		}

		// Assign replica config back to main config.
		conf.Replicas[name] = replica
	}

	return conf, nil
}
