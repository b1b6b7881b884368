// Command jitca runs the just-in-time certificate authority service:
// it loads a TOML configuration, assembles the signing registry,
// challenge engine and authorization backend it describes, and serves
// the RPC surface in pkg/api until interrupted.
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/ssh"

	"github.com/cuemby/jitca/pkg/allowedsigners"
	"github.com/cuemby/jitca/pkg/api"
	"github.com/cuemby/jitca/pkg/attestation/disabled"
	"github.com/cuemby/jitca/pkg/authz"
	"github.com/cuemby/jitca/pkg/authz/local"
	"github.com/cuemby/jitca/pkg/challenge"
	"github.com/cuemby/jitca/pkg/config"
	"github.com/cuemby/jitca/pkg/issuance"
	"github.com/cuemby/jitca/pkg/log"
	"github.com/cuemby/jitca/pkg/signing"
	"github.com/cuemby/jitca/pkg/signing/filebackend"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "jitca",
	Short:   "jitca issues short-lived SSH and X.509 certificates on demand",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("jitca version %s (%s)\n", Version, Commit))

	rootCmd.Flags().String("config", "/etc/jitca/jitca.toml", "Path to the jitca TOML configuration file")
	rootCmd.Flags().CountP("validate", "v", "Validate configuration and exit without serving; repeat (-vv) to also load every configured key and authority")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

func run(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	validateCount, _ := cmd.Flags().GetCount("validate")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if validateCount >= 1 {
		fmt.Println("configuration parsed successfully")
	}
	if validateCount == 0 {
		return serve(cfg)
	}
	if validateCount == 1 {
		return nil
	}

	registry, issuer, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	if _, err := tls.LoadX509KeyPair(cfg.ServerCert, cfg.ServerKey); err != nil {
		return fmt.Errorf("loading server TLS certificate: %w", err)
	}
	if validateCount >= 2 {
		fmt.Print(registry.Report())
	}
	_ = issuer
	return nil
}

// buildRuntime assembles the signing registry and issuance pipeline from
// cfg, performing every key/authority load that -vv validation and
// actual serving both require.
func buildRuntime(cfg *config.Config) (*signing.Registry, *issuance.Issuer, error) {
	authorities := make(map[string]signing.Backend, len(cfg.Signing.AuthorityConfigurations))
	for name, authCfg := range cfg.Signing.AuthorityConfigurations {
		backend, err := buildAuthorityBackend(authCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("authority %q: %w", name, err)
		}
		authorities[name] = backend
	}

	registry, err := signing.New(cfg.Signing.DefaultAuthority, authorities)
	if err != nil {
		return nil, nil, fmt.Errorf("assembling signing registry: %w", err)
	}

	challengeEngine, err := newChallengeEngine(cfg.RequireRusticaProof)
	if err != nil {
		return nil, nil, err
	}

	authzBackend, err := buildAuthzBackend(cfg.Authorization)
	if err != nil {
		return nil, nil, fmt.Errorf("assembling authorization backend: %w", err)
	}

	issuer := &issuance.Issuer{
		Challenges:         challengeEngine,
		Signers:            registry,
		Authorizer:         authzBackend,
		PIV:                disabled.Verifier{},
		U2F:                disabled.Verifier{},
		RequireAttestation: cfg.RequireAttestationChain,
		ReissuancePolicy: challenge.ReissuancePolicy{
			ValidityLength:          cfg.ClientAuthority.ValidityLength,
			ExpirationRenewalPeriod: cfg.ClientAuthority.ExpirationRenewalPeriod,
		},
		ClientAuthority: cfg.ClientAuthority.Authority,
	}

	return registry, issuer, nil
}

// buildAuthorityBackend dispatches on signing.kind. Only "file" is
// constructible from TOML alone: token and KMS authorities need a live
// hardware session or cloud client handed in by the process embedding
// this binary, which is outside what a config file can express.
func buildAuthorityBackend(authCfg config.AuthorityConfig) (signing.Backend, error) {
	switch authCfg.Kind {
	case config.SignerKindFile:
		return filebackend.Load(filebackend.Config{
			UserKeyPath:                 authCfg.UserKeyPath,
			UserKeyPassphrase:           authCfg.UserKeyPassphrase,
			UserKeyEncryptionPassphrase: authCfg.UserKeyEncryptionPassphrase,
			HostKeyPath:                 authCfg.HostKeyPath,
			HostKeyPassphrase:           authCfg.HostKeyPassphrase,
			HostKeyEncryptionPassphrase: authCfg.HostKeyEncryptionPassphrase,
			AttestedX509CACertPath:      authCfg.AttestedX509CACertPath,
			AttestedX509CAKeyPath:       authCfg.AttestedX509CAKeyPath,
			ClientCACertPath:            authCfg.ClientCACertPath,
			ClientCAKeyPath:             authCfg.ClientCAKeyPath,
		})
	case config.SignerKindToken, config.SignerKindKMS:
		return nil, fmt.Errorf("authority kind %q requires a live signer supplied by an embedding process; jitca's stock binary only constructs %q authorities from a config file", authCfg.Kind, config.SignerKindFile)
	default:
		return nil, fmt.Errorf("unknown signing authority kind %q", authCfg.Kind)
	}
}

// buildAuthzBackend dispatches on authorization.kind. Only "local" is
// constructible here; "remote" is an external collaborator left to an
// embedding process.
func buildAuthzBackend(authzCfg config.Authorization) (authz.Backend, error) {
	switch authzCfg.Kind {
	case "", "local":
		return local.FromConfig(authzCfg), nil
	default:
		return nil, fmt.Errorf("authorization kind %q requires an embedding process to supply its own authz.Backend; jitca's stock binary only constructs a %q backend", authzCfg.Kind, "local")
	}
}

// newChallengeEngine generates the process-lifetime HMAC key and
// challenge-signing Ed25519 keypair. Neither survives a restart by
// design: every challenge in flight at shutdown is simply invalidated,
// which keeps the challenge protocol stateless and free of any
// at-rest secret to protect between restarts.
func newChallengeEngine(requireProofOfPossession bool) (*challenge.Engine, error) {
	hmacKey := make([]byte, 32)
	if _, err := rand.Read(hmacKey); err != nil {
		return nil, fmt.Errorf("generating challenge HMAC key: %w", err)
	}

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating challenge signing key: %w", err)
	}
	challengeSigner, err := ssh.NewSignerFromSigner(priv)
	if err != nil {
		return nil, fmt.Errorf("wrapping challenge signing key: %w", err)
	}

	return challenge.New(hmacKey, challengeSigner, requireProofOfPossession), nil
}

func serve(cfg *config.Config) error {
	if _, err := cfg.ValidateListenAddress(); err != nil {
		return err
	}

	registry, issuer, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	if err := cfg.ValidateClientAuthority(registry.AuthoritiesWithClientCA()); err != nil {
		return err
	}
	clientCA, err := registry.ClientCertificateAuthority(cfg.ClientAuthority.Authority)
	if err != nil || clientCA == nil {
		return fmt.Errorf("client authority %q does not have a client CA configured", cfg.ClientAuthority.Authority)
	}
	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(clientCA.Certificate)

	allowedCache, err := allowedsigners.NewCache(issuer.Authorizer, cfg.AllowedSigners.CacheValidityLength)
	if err != nil {
		return fmt.Errorf("constructing allowed signers cache: %w", err)
	}
	rateLimiter, err := allowedsigners.NewRateLimiter(cfg.AllowedSigners.LRURateLimiterSize, cfg.AllowedSigners.RateLimitCooldown)
	if err != nil {
		return fmt.Errorf("constructing allowed signers rate limiter: %w", err)
	}

	cert, err := tls.LoadX509KeyPair(cfg.ServerCert, cfg.ServerKey)
	if err != nil {
		return fmt.Errorf("loading server TLS certificate: %w", err)
	}

	server, err := api.NewServer(api.Dependencies{
		Challenges:     issuer.Challenges,
		Issuer:         issuer,
		AllowedSigners: allowedCache,
		RateLimiter:    rateLimiter,
		PIV:            issuer.PIV,
		U2F:            issuer.U2F,
	}, cert, clientCAs)
	if err != nil {
		return fmt.Errorf("constructing server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ctx, cfg.ListenAddress) }()

	select {
	case sig := <-sigCh:
		log.Info(fmt.Sprintf("received %s, shutting down", sig))
		cancel()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}
