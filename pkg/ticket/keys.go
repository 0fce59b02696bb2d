package ticket

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	privateKeyFile = "ticket_private_key.pem"
	publicKeyFile  = "ticket_public_key.pem"

	rsaKeySize = 2048
	kidLength  = 16
)

// Signer holds the coordinator's ticket signing keypair. The private key
// never leaves the coordinator process; the public key is distributed over
// a read-only endpoint and is safe for nodes to cache for the lifetime of
// their process.
type Signer struct {
	privateKey *rsa.PrivateKey
	publicPEM  string
	kid        string
}

// LoadOrGenerateSigner loads the signing keypair from dir, generating and
// persisting a fresh RSA keypair on first start. The private key file is
// written owner read-only.
func LoadOrGenerateSigner(dir string) (*Signer, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "creating key directory")
	}

	privatePath := filepath.Join(dir, privateKeyFile)
	publicPath := filepath.Join(dir, publicKeyFile)

	if _, err := os.Stat(privatePath); err == nil {
		return loadSigner(privatePath)
	}

	log.Info().Str("dir", dir).Msg("generating ticket signing keypair")
	privateKey, err := rsa.GenerateKey(rand.Reader, rsaKeySize)
	if err != nil {
		return nil, errors.Wrap(err, "generating RSA keypair")
	}

	privateDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, errors.Wrap(err, "encoding private key")
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER})
	if err := os.WriteFile(privatePath, privatePEM, 0o400); err != nil {
		return nil, errors.Wrap(err, "writing private key")
	}

	signer, err := newSigner(privateKey)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(publicPath, []byte(signer.publicPEM), 0o644); err != nil { //nolint:gosec // public key is public
		return nil, errors.Wrap(err, "writing public key")
	}
	return signer, nil
}

func loadSigner(privatePath string) (*Signer, error) {
	raw, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, errors.Wrap(err, "reading private key")
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.Errorf("no PEM block found in %s", privatePath)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}
	privateKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.Errorf("private key in %s is not RSA", privatePath)
	}
	return newSigner(privateKey)
}

func newSigner(privateKey *rsa.PrivateKey) (*Signer, error) {
	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, errors.Wrap(err, "encoding public key")
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})
	fingerprint := sha256.Sum256(publicDER)
	return &Signer{
		privateKey: privateKey,
		publicPEM:  string(publicPEM),
		kid:        hex.EncodeToString(fingerprint[:])[:kidLength],
	}, nil
}

// PublicKeyPEM returns the public key in PEM encoding for distribution.
func (s *Signer) PublicKeyPEM() string {
	return s.publicPEM
}

// KeyID returns a stable fingerprint of the public key, carried in the kid
// header of every ticket so a future key rotation can overlap keys without
// changing the claim format.
func (s *Signer) KeyID() string {
	return s.kid
}

// ParsePublicKeyPEM decodes a PEM-encoded RSA public key as served by the
// coordinator's public-key endpoint.
func ParsePublicKeyPEM(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing public key")
	}
	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return publicKey, nil
}
