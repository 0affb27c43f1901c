// config package holds the runtime configuration of the disclosure tools.
// Every value is a command line flag that can also be set with an
// environment variable named after the flag: ZKDISCLOSURE_ followed by the
// flag name in upper case with dashes replaced by underscores (for example
// --api-port and ZKDISCLOSURE_API_PORT). Flags set on the command line take
// precedence over the environment.
package config

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/vocdoni/zk-disclosure/circuits"
	"github.com/vocdoni/zk-disclosure/crypto/secp256k1"
	"github.com/vocdoni/zk-disclosure/log"
	"github.com/vocdoni/zk-disclosure/util"
	"github.com/vocdoni/zk-disclosure/zkvm"
)

// EnvPrefix is the prefix of the environment variables that override flags.
const EnvPrefix = "ZKDISCLOSURE_"

const (
	DefaultOutputDir       = "/tmp/castvote"
	DefaultAPIHost         = "0.0.0.0"
	DefaultAPIPort         = 8080
	DefaultProverWorkers   = 1
	DefaultJobCacheSize    = 1024
	DefaultJobCacheTTL     = 10 * time.Minute
	DefaultDownloadTimeout = 5 * time.Minute
	DefaultReceiptKind     = "groth16"
)

// Config is the configuration of the disclosure tools.
type Config struct {
	LogLevel  string
	LogOutput string

	// PublicKey is the base64 SEC1 encoding of the registered voter key.
	PublicKey string
	// PrivateKey is the base64 voter signing key, only used by the CLI to
	// sign payloads.
	PrivateKey string
	// Salt is mixed into every nullifier.
	Salt string

	ReceiptKind string
	DevMode     bool

	ArtifactsDir     string
	CircuitHash      string
	CircuitURL       string
	ProvingKeyHash   string
	ProvingKeyURL    string
	VerifyingKeyHash string
	VerifyingKeyURL  string
	DownloadTimeout  time.Duration

	OutputDir string
	DataDir   string

	APIHost       string
	APIPort       int
	ProverWorkers int
	JobCacheSize  int
	JobCacheTTL   time.Duration
}

// RegisterFlags binds the configuration fields to flags of fs.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	fs.StringVar(&c.LogLevel, "log-level", log.LogLevelInfo, "log level (debug, info, warn, error, fatal)")
	fs.StringVar(&c.LogOutput, "log-output", "stdout", "log output (stdout, stderr or a file path)")
	fs.StringVar(&c.PublicKey, "public-key", "", "base64 SEC1 public key of the registered voter")
	fs.StringVar(&c.PrivateKey, "private-key", "", "base64 private key used to sign vote payloads")
	fs.StringVar(&c.Salt, "salt", "", "nullifier salt")
	fs.StringVar(&c.ReceiptKind, "receipt-kind", DefaultReceiptKind, "proof system of the receipts (groth16, plonk or fake)")
	fs.BoolVar(&c.DevMode, "dev-mode", false, "produce and accept fake receipts")
	fs.StringVar(&c.ArtifactsDir, "artifacts-dir", "", "circuit artifacts cache directory")
	fs.StringVar(&c.CircuitHash, "circuit-hash", "", "sha256 of the claim circuit definition (hex)")
	fs.StringVar(&c.CircuitURL, "circuit-url", "", "remote url of the claim circuit definition")
	fs.StringVar(&c.ProvingKeyHash, "proving-key-hash", "", "sha256 of the proving key")
	fs.StringVar(&c.ProvingKeyURL, "proving-key-url", "", "remote url of the proving key")
	fs.StringVar(&c.VerifyingKeyHash, "verifying-key-hash", "", "sha256 of the verifying key")
	fs.StringVar(&c.VerifyingKeyURL, "verifying-key-url", "", "remote url of the verifying key")
	fs.DurationVar(&c.DownloadTimeout, "download-timeout", DefaultDownloadTimeout, "timeout of the artifacts download")
	fs.StringVar(&c.OutputDir, "output-dir", DefaultOutputDir, "directory of the proof artifact files")
	fs.StringVar(&c.DataDir, "data-dir", home+"/.zkdisclosure", "node database directory")
	fs.StringVar(&c.APIHost, "api-host", DefaultAPIHost, "API listen host")
	fs.IntVar(&c.APIPort, "api-port", DefaultAPIPort, "API listen port")
	fs.IntVar(&c.ProverWorkers, "prover-workers", DefaultProverWorkers, "number of concurrent prover workers")
	fs.IntVar(&c.JobCacheSize, "job-cache-size", DefaultJobCacheSize, "number of finished jobs cached by the API")
	fs.DurationVar(&c.JobCacheTTL, "job-cache-ttl", DefaultJobCacheTTL, "expiration of the cached jobs")
}

// EnvKey returns the environment variable that overrides the flag.
func EnvKey(flagName string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// LoadEnv sets every flag of fs not set on the command line from its
// environment variable, if present.
func LoadEnv(fs *pflag.FlagSet) error {
	var errs []string
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}
		value, isSet := os.LookupEnv(EnvKey(f.Name))
		if !isSet {
			return
		}
		if err := fs.Set(f.Name, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvKey(f.Name), err))
		}
	})
	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load parses the arguments and the environment into a new configuration
// and validates it.
func Load(name string, args []string) (*Config, error) {
	c := &Config{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := LoadEnv(fs); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that the configuration is complete and consistent.
func (c *Config) Validate() error {
	if c.PublicKey == "" {
		return fmt.Errorf("missing public key, set --public-key or %s", EnvKey("public-key"))
	}
	if _, err := c.VoterPublicKey(); err != nil {
		return err
	}
	if c.Salt == "" {
		return fmt.Errorf("missing nullifier salt, set --salt or %s", EnvKey("salt"))
	}
	kind, err := c.Kind()
	if err != nil {
		return err
	}
	if kind == zkvm.KindFake && !c.DevMode {
		return fmt.Errorf("fake receipts require --dev-mode")
	}
	if c.ProverWorkers < 1 {
		return fmt.Errorf("invalid number of prover workers: %d", c.ProverWorkers)
	}
	if c.APIPort < 0 || c.APIPort > 65535 {
		return fmt.Errorf("invalid api port: %d", c.APIPort)
	}
	for name, hash := range map[string]string{
		"circuit-hash":       c.CircuitHash,
		"proving-key-hash":   c.ProvingKeyHash,
		"verifying-key-hash": c.VerifyingKeyHash,
	} {
		if hash == "" {
			continue
		}
		if b, err := hex.DecodeString(util.TrimHex(hash)); err != nil || len(b) != 32 {
			return fmt.Errorf("invalid %s: expected a hex sha256 digest", name)
		}
	}
	return nil
}

// VoterPublicKey decodes the registered voter key.
func (c *Config) VoterPublicKey() (*ecdsa.PublicKey, error) {
	pub, err := secp256k1.ParsePublicKey(c.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	return pub, nil
}

// SigningKey decodes the voter signing key.
func (c *Config) SigningKey() (*ecdsa.PrivateKey, error) {
	if c.PrivateKey == "" {
		return nil, fmt.Errorf("missing private key, set --private-key or %s", EnvKey("private-key"))
	}
	priv, err := secp256k1.ParsePrivateKey(c.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return priv, nil
}

// Kind returns the configured receipt kind.
func (c *Config) Kind() (zkvm.ReceiptKind, error) {
	return zkvm.ParseReceiptKind(c.ReceiptKind)
}

// HasArtifacts reports whether the verifying key artifact is configured.
func (c *Config) HasArtifacts() bool {
	return c.VerifyingKeyHash != ""
}

// Artifacts returns the circuit artifacts described by the configuration.
// The circuit definition and the proving key are left out when their hash
// is not set, which is enough to verify receipts.
func (c *Config) Artifacts() *circuits.CircuitArtifacts {
	artifact := func(hash, url string) *circuits.Artifact {
		if hash == "" {
			return nil
		}
		// the hash has already been validated
		b, _ := hex.DecodeString(util.TrimHex(hash))
		return &circuits.Artifact{RemoteURL: url, Hash: b}
	}
	return circuits.NewCircuitArtifacts(
		artifact(c.CircuitHash, c.CircuitURL),
		artifact(c.ProvingKeyHash, c.ProvingKeyURL),
		artifact(c.VerifyingKeyHash, c.VerifyingKeyURL),
	)
}

// Apply sets the process wide settings of the configuration: the logger
// and the artifacts cache directory.
func (c *Config) Apply() {
	log.Init(c.LogLevel, c.LogOutput, nil)
	if c.ArtifactsDir != "" {
		circuits.BaseDir = c.ArtifactsDir
	}
}
