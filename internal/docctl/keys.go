package docctl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docverify/internal/document/signer"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a document signing key pair",
	Long: `Writes <kid>.pem (private) and <kid>.pub.pem (public) into the output
directory in the layout the server loads from SIGNING_KEYS_DIR. Distribute the
public half to offline verifiers; keep the private half with the server.`,
	RunE: runKeygen,
}

var keygenFlags struct {
	alg string
	kid string
	out string
}

func init() {
	keygenCmd.Flags().StringVar(&keygenFlags.alg, "alg", "eddsa", "Signature algorithm: eddsa or es256")
	keygenCmd.Flags().StringVar(&keygenFlags.kid, "kid", "", "Key id, used as the file name")
	keygenCmd.Flags().StringVarP(&keygenFlags.out, "out", "o", ".", "Output directory")
	_ = keygenCmd.MarkFlagRequired("kid")
	rootCmd.AddCommand(keygenCmd)
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	kid := strings.TrimSpace(keygenFlags.kid)
	if kid == "" || strings.ContainsAny(kid, `/\.`) {
		return fmt.Errorf("invalid key id %q", keygenFlags.kid)
	}

	var (
		key *signer.Key
		err error
	)
	switch strings.ToLower(keygenFlags.alg) {
	case "eddsa", "ed25519":
		key, err = signer.GenerateEd25519(kid)
	case "es256":
		key, err = signer.GenerateES256(kid)
	default:
		return fmt.Errorf("unsupported algorithm %q", keygenFlags.alg)
	}
	if err != nil {
		return err
	}

	priv, pub, err := signer.EncodePEM(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(keygenFlags.out, 0o700); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	privPath := filepath.Join(keygenFlags.out, kid+".pem")
	pubPath := filepath.Join(keygenFlags.out, kid+".pub.pem")
	if _, err := os.Stat(privPath); err == nil {
		return fmt.Errorf("%s already exists", privPath)
	}
	if err := os.WriteFile(privPath, priv, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pub, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	cmd.Printf("generated %s key %s\n  private: %s\n  public:  %s\n", key.Algorithm, kid, privPath, pubPath)
	return nil
}
